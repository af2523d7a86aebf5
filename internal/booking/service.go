/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package booking

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

// Messages reported by Allocate.
const (
	MsgNotClaimant     = "user is not able to make bookings"
	MsgNotFound        = "Time block not found"
	MsgAlreadyBooked   = "Time block is already booked"
	MsgRetry           = "Unable to complete booking due to concurrent requests. Please try again."
	MsgDatabaseFailure = "A database error occurred: %v"
)

var (
	// ErrBlockNotFound is returned by the read side for unknown block ids.
	ErrBlockNotFound = errors.New("time block not found")
)

// Outcome discriminates allocation results.
type Outcome string

const (
	OutcomeClaimed        Outcome = "claimed"
	OutcomeRoleRejected   Outcome = "role_rejected"
	OutcomeAlreadyClaimed Outcome = "already_claimed"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeInvalid        Outcome = "invalid"
	OutcomeRetryable      Outcome = "retryable"
	OutcomeDBError        Outcome = "db_error"
)

// AllocationResult is the outcome of one Allocate call.
type AllocationResult struct {
	models.Result
	Outcome Outcome       `json:"outcome"`
	Claim   *models.Claim `json:"claim,omitempty"`
}

func (r *AllocationResult) reject(outcome Outcome, messages ...string) {
	r.Outcome = outcome
	for _, m := range messages {
		r.AddError(m)
	}
}

// txDecision is what the transaction body asks for: commit, or abort with a
// domain outcome. Storage failures travel separately as errors.
type txDecision struct {
	commit   bool
	outcome  Outcome
	messages []string
}

func commitTx() txDecision {
	return txDecision{commit: true}
}

func abortTx(outcome Outcome, messages ...string) txDecision {
	return txDecision{outcome: outcome, messages: messages}
}

// Service allocates published time blocks to claimants.
type Service struct {
	db       *gorm.DB
	clock    clock.Clock
	notifier events.Notifier
	locker   lock.Locker
	logger   zerolog.Logger
}

// NewService creates an allocation service. locker provides block exclusion
// on top of (or instead of) database row locks.
func NewService(database *gorm.DB, clk clock.Clock, notifier events.Notifier, locker lock.Locker, logger zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if notifier == nil {
		notifier = events.Nop{}
	}
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &Service{
		db:       database,
		clock:    clk,
		notifier: notifier,
		locker:   locker,
		logger:   logger.With().Str("component", "booking").Logger(),
	}
}

// Allocate claims blockID for claimant. At most one call ever succeeds for a
// given block; the others report already_claimed or a retryable failure.
func (s *Service) Allocate(ctx context.Context, claimant models.Actor, blockID string) *AllocationResult {
	ctx, span := telemetry.StartSpan(ctx, "booking.Allocate",
		attribute.String("block_id", blockID),
		attribute.String("claimant_id", claimant.ID),
	)
	result := &AllocationResult{}
	defer func() {
		telemetry.AllocationsTotal.WithLabelValues(string(result.Outcome)).Inc()
		span.SetAttributes(attribute.String("outcome", string(result.Outcome)))
		span.End()
	}()

	if !claimant.IsClaimant() {
		result.reject(OutcomeRoleRejected, MsgNotClaimant)
		return result
	}

	if _, err := uuid.Parse(blockID); err != nil {
		result.reject(OutcomeNotFound, MsgNotFound)
		return result
	}

	waitStart := time.Now()
	unlock, err := s.locker.Lock(ctx, lock.BlockKey(blockID))
	if err != nil {
		s.fail(result, blockID, err)
		return result
	}
	defer unlock()
	telemetry.AllocationLockWait.Observe(time.Since(waitStart).Seconds())

	claim, decision, err := s.runTx(ctx, claimant, blockID)
	if err != nil {
		s.fail(result, blockID, err)
		return result
	}
	if !decision.commit {
		result.reject(decision.outcome, decision.messages...)
		s.logger.Debug().
			Str("block_id", blockID).
			Str("claimant_id", claimant.ID).
			Str("outcome", string(decision.outcome)).
			Msg("allocation aborted")
		return result
	}

	result.Outcome = OutcomeClaimed
	result.Claim = claim

	s.logger.Info().
		Str("block_id", blockID).
		Str("claimant_id", claimant.ID).
		Str("claim_id", claim.ID).
		Msg("time block claimed")

	s.notifier.Publish(events.EventBlockClaimed, events.Payload{
		"block_id":    blockID,
		"claimant_id": claimant.ID,
		"claim_id":    claim.ID,
	})

	return result
}

// runTx opens the transaction, runs the body and commits or rolls back as the
// body decided.
func (s *Service) runTx(ctx context.Context, claimant models.Actor, blockID string) (*models.Claim, txDecision, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, txDecision{}, fmt.Errorf("begin: %w", tx.Error)
	}

	claim, decision, err := s.claimLocked(ctx, tx, claimant, blockID)
	if err != nil {
		tx.Rollback()
		return nil, txDecision{}, err
	}
	if !decision.commit {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			s.logger.Warn().Err(rbErr).Str("block_id", blockID).Msg("rollback failed")
		}
		return nil, decision, nil
	}

	if err := tx.Commit().Error; err != nil {
		return nil, txDecision{}, fmt.Errorf("commit: %w", err)
	}
	return claim, decision, nil
}

// claimLocked is the transaction body. The block row stays locked from the
// SELECT until the transaction ends, so the claim check and the insert cannot
// interleave with another allocation of the same block.
func (s *Service) claimLocked(ctx context.Context, tx *gorm.DB, claimant models.Actor, blockID string) (*models.Claim, txDecision, error) {
	var block models.TimeBlock
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", blockID).
		Take(&block).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, abortTx(OutcomeNotFound, MsgNotFound), nil
	}
	if err != nil {
		return nil, txDecision{}, fmt.Errorf("lock time block: %w", err)
	}

	var existing int64
	if err := tx.Model(&models.Claim{}).Where("time_block_id = ?", block.ID).Count(&existing).Error; err != nil {
		return nil, txDecision{}, fmt.Errorf("count claims: %w", err)
	}
	if existing > 0 {
		return nil, abortTx(OutcomeAlreadyClaimed, MsgAlreadyBooked), nil
	}

	violations, err := ValidateClaim(ctx, tx, claimant, &block)
	if err != nil {
		return nil, txDecision{}, err
	}
	if violations.Any() {
		return nil, abortTx(OutcomeInvalid, violations.FullMessages()...), nil
	}

	claim := &models.Claim{
		ID:          uuid.NewString(),
		ClaimantID:  claimant.ID,
		TimeBlockID: block.ID,
		CreatedAt:   s.clock.Now(),
	}
	if err := tx.Create(claim).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, abortTx(OutcomeAlreadyClaimed, MsgAlreadyBooked), nil
		}
		return nil, txDecision{}, fmt.Errorf("insert claim: %w", err)
	}

	return claim, commitTx(), nil
}

// fail translates a storage failure into the result.
func (s *Service) fail(result *AllocationResult, blockID string, err error) {
	if db.IsDeadlock(err) {
		s.logger.Warn().Err(err).Str("block_id", blockID).Msg("allocation lost a lock race")
		result.reject(OutcomeRetryable, MsgRetry)
		return
	}
	s.logger.Error().Err(err).Str("block_id", blockID).Msg("allocation failed")
	result.reject(OutcomeDBError, fmt.Sprintf(MsgDatabaseFailure, err))
}

// Get returns one block with its claim.
func (s *Service) Get(ctx context.Context, blockID string) (*models.TimeBlock, error) {
	if _, err := uuid.Parse(blockID); err != nil {
		return nil, ErrBlockNotFound
	}

	var block models.TimeBlock
	err := s.db.WithContext(ctx).Preload("Claim").Where("id = ?", blockID).Take(&block).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get time block: %w", err)
	}
	return &block, nil
}

// ListOpen returns unclaimed blocks starting in [from, to) that have not
// started yet, ordered by start.
func (s *Service) ListOpen(ctx context.Context, from, to time.Time) ([]models.TimeBlock, error) {
	if now := s.clock.Now(); from.Before(now) {
		from = now
	}

	blocks := []models.TimeBlock{}
	err := s.db.WithContext(ctx).
		Where("start_time >= ? AND start_time < ?", from.UTC(), to.UTC()).
		Where("NOT EXISTS (SELECT 1 FROM claims WHERE claims.time_block_id = time_blocks.id)").
		Order("start_time ASC").
		Find(&blocks).Error
	if err != nil {
		return nil, fmt.Errorf("list open time blocks: %w", err)
	}
	return blocks, nil
}

// ListClaims returns the claims held by a claimant, newest first.
func (s *Service) ListClaims(ctx context.Context, claimantID string) ([]models.Claim, error) {
	claims := []models.Claim{}
	err := s.db.WithContext(ctx).
		Where("claimant_id = ?", claimantID).
		Order("created_at DESC").
		Find(&claims).Error
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return claims, nil
}
