/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/daisho-wakazashi/keybook/internal/clock"
	"github.com/daisho-wakazashi/keybook/internal/db"
	"github.com/daisho-wakazashi/keybook/internal/events"
	"github.com/daisho-wakazashi/keybook/internal/lock"
	"github.com/daisho-wakazashi/keybook/internal/models"
	"github.com/daisho-wakazashi/keybook/internal/telemetry"
)

// sourceName identifies this engine in emitted events.
const sourceName = "availability.Ingestor"

var (
	// ErrNotOwner is returned when a non-owner asks for an owner's schedule.
	ErrNotOwner = errors.New("actor is not an owner")
)

// IngestResult is the outcome of one ingestion call.
type IngestResult struct {
	models.Result
	Created []models.TimeBlock `json:"created"`
	Skipped []string           `json:"skipped,omitempty"`
}

// Service turns batches of raw instants into persisted time blocks.
type Service struct {
	db       *gorm.DB
	clock    clock.Clock
	notifier events.Notifier
	locker   lock.Locker
	loc      *time.Location
	logger   zerolog.Logger
}

// NewService creates an ingestion service. loc is the reference location used
// for zone-less instants and day partitioning.
func NewService(database *gorm.DB, clk clock.Clock, notifier events.Notifier, locker lock.Locker, loc *time.Location, logger zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if notifier == nil {
		notifier = events.Nop{}
	}
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		db:       database,
		clock:    clk,
		notifier: notifier,
		locker:   locker,
		loc:      loc,
		logger:   logger.With().Str("component", "availability").Logger(),
	}
}

// Location returns the reference location.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Now returns the current time from the service clock.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// Ingest parses raw (a serialized list of instants), merges the valid instants
// into maximal blocks and persists each block independently. Failures are
// collected in the result; one rejected block never discards the others.
func (s *Service) Ingest(ctx context.Context, owner models.Actor, raw string) *IngestResult {
	ctx, span := telemetry.StartSpan(ctx, "availability.Ingest", attribute.String("owner_id", owner.ID))
	defer span.End()

	result := &IngestResult{Created: []models.TimeBlock{}}

	if !owner.IsOwner() {
		result.AddError(MsgNotOwner)
		telemetry.IngestBatchesTotal.WithLabelValues("rejected").Inc()
		return result
	}

	values, err := DecodeBatch(raw)
	if err != nil {
		s.logger.Debug().Err(err).Str("owner_id", owner.ID).Msg("invalid availability batch")
		result.AddError(MsgInvalidData)
		telemetry.IngestBatchesTotal.WithLabelValues("invalid").Inc()
		return result
	}

	instants := make([]time.Time, 0, len(values))
	for _, value := range values {
		t, err := ParseInstant(value, s.loc)
		if err != nil {
			s.reportInvalid(owner, value)
			result.Skipped = append(result.Skipped, value)
			continue
		}
		instants = append(instants, t)
	}

	spans := MergeInstants(instants, s.loc)
	span.SetAttributes(
		attribute.Int("instants", len(instants)),
		attribute.Int("blocks", len(spans)),
	)
	if len(spans) == 0 {
		telemetry.IngestBatchesTotal.WithLabelValues("success").Inc()
		return result
	}

	unlock, err := s.locker.Lock(ctx, lock.OwnerKey(owner.ID))
	if err != nil {
		result.AddError(fmt.Sprintf(MsgDatabaseFailure, err))
		telemetry.IngestBatchesTotal.WithLabelValues("failure").Inc()
		return result
	}
	defer unlock()

	for _, sp := range spans {
		block, violations, err := s.createBlock(ctx, owner, sp)
		switch {
		case err != nil:
			s.logger.Error().Err(err).
				Str("owner_id", owner.ID).
				Time("start", sp.Start).
				Msg("failed to persist time block")
			result.AddError(fmt.Sprintf(MsgDatabaseFailure, err))
			telemetry.IngestBlocksTotal.WithLabelValues("error").Inc()
		case violations.Any():
			result.AddViolations(violations)
			telemetry.IngestBlocksTotal.WithLabelValues("rejected").Inc()
		default:
			result.Created = append(result.Created, *block)
			telemetry.IngestBlocksTotal.WithLabelValues("created").Inc()
		}
	}

	if len(result.Created) > 0 {
		s.notifier.Publish(events.EventAvailabilityCreated, events.Payload{
			"owner_id": owner.ID,
			"count":    len(result.Created),
		})
	}

	if result.Success() {
		telemetry.IngestBatchesTotal.WithLabelValues("success").Inc()
	} else {
		telemetry.IngestBatchesTotal.WithLabelValues("failure").Inc()
		span.SetAttributes(attribute.Int("errors", len(result.Errors)))
	}

	s.logger.Info().
		Str("owner_id", owner.ID).
		Int("created", len(result.Created)).
		Int("errors", len(result.Errors)).
		Int("skipped", len(result.Skipped)).
		Msg("availability ingested")

	return result
}

// createBlock validates and inserts one span. Violations mean nothing was
// written; err means the storage layer failed.
func (s *Service) createBlock(ctx context.Context, owner models.Actor, sp Span) (*models.TimeBlock, models.Violations, error) {
	block := &models.TimeBlock{
		ID:        uuid.NewString(),
		OwnerID:   owner.ID,
		StartTime: sp.Start,
		EndTime:   sp.End,
	}

	var violations models.Violations
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serializes same-owner writers on dialects with row locks.
		var user models.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", owner.ID).
			Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			violations.Add("owner", MsgOwnerMissing)
			return nil
		}
		if err != nil {
			return err
		}

		vs, err := ValidateBlock(ctx, tx, s.clock, block)
		if err != nil {
			return err
		}
		if vs.Any() {
			violations = vs
			return nil
		}

		return tx.Create(block).Error
	})
	if err != nil {
		switch {
		case db.IsUniqueViolation(err):
			violations.AddBase(MsgDuplicate)
		case db.IsCheckViolation(err):
			violations.AddBase(MsgOverlap)
		default:
			return nil, nil, err
		}
	}
	if violations.Any() {
		return nil, violations, nil
	}
	return block, nil, nil
}

func (s *Service) reportInvalid(owner models.Actor, value string) {
	telemetry.IngestInvalidInstantsTotal.Inc()
	s.logger.Warn().
		Str("owner_id", owner.ID).
		Str("invalid_value", value).
		Msg("skipping unparseable availability instant")
	s.notifier.Publish(events.EventInvalidDatetime, events.Payload{
		"owner_id":      owner.ID,
		"invalid_value": value,
		"source":        sourceName,
	})
}

// ListRange returns an owner's blocks starting in [from, to), with claims.
func (s *Service) ListRange(ctx context.Context, ownerID string, from, to time.Time) ([]models.TimeBlock, error) {
	var blocks []models.TimeBlock
	err := s.db.WithContext(ctx).
		Preload("Claim").
		Where("owner_id = ? AND start_time >= ? AND start_time < ?", ownerID, from.UTC(), to.UTC()).
		Order("start_time ASC").
		Find(&blocks).Error
	if err != nil {
		return nil, fmt.Errorf("list time blocks: %w", err)
	}
	return blocks, nil
}

// ListWeek returns the owner's blocks in the Sunday-start week containing date.
func (s *Service) ListWeek(ctx context.Context, owner models.Actor, date time.Time) ([]models.TimeBlock, error) {
	if !owner.IsOwner() {
		return nil, ErrNotOwner
	}
	from, to := WeekRange(date, s.loc)
	return s.ListRange(ctx, owner.ID, from, to)
}
