/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package availability

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/daisho-wakazashi/keybook/internal/clock"
	"github.com/daisho-wakazashi/keybook/internal/models"
)

// Messages attached to time block violations.
const (
	MsgInvalidData     = "Invalid availability data"
	MsgNotOwner        = "user is not able to publish availability"
	MsgBlank           = "can't be blank"
	MsgEndBeforeStart  = "must be after start time"
	MsgInPast          = "cannot be in the past"
	MsgOverlap         = "This time slot overlaps with an existing availability"
	MsgDuplicate       = "This time slot has already been added"
	MsgOwnerMissing    = "must exist"
	MsgDatabaseFailure = "A database error occurred: %v"
)

// MaxBlockSpan bounds how long a stored block can be. Merging never crosses a
// local calendar day, and the longest local day is 25h (DST fall-back), so
// overlap lookups only need to scan blocks starting within this distance
// before the candidate.
const MaxBlockSpan = 25 * time.Hour

// ValidateBlock checks a candidate block against its owner's existing blocks.
// Violations are returned in a stable order; err is only set when the lookup
// itself failed.
func ValidateBlock(ctx context.Context, tx *gorm.DB, clk clock.Clock, block *models.TimeBlock) (models.Violations, error) {
	var vs models.Violations

	hasStart := !block.StartTime.IsZero()
	hasEnd := !block.EndTime.IsZero()

	if !hasStart {
		vs.Add("start_time", MsgBlank)
	}
	if !hasEnd {
		vs.Add("end_time", MsgBlank)
	}

	ordered := hasStart && hasEnd && block.EndTime.After(block.StartTime)
	if hasStart && hasEnd && !ordered {
		vs.Add("end_time", MsgEndBeforeStart)
	}

	if ordered && block.OwnerID != "" {
		overlaps, err := countOverlaps(ctx, tx, block)
		if err != nil {
			return nil, fmt.Errorf("check overlap: %w", err)
		}
		if overlaps > 0 {
			vs.AddBase(MsgOverlap)
		}
	}

	if hasStart && block.StartTime.Before(clk.Now()) {
		vs.Add("start_time", MsgInPast)
	}

	return vs, nil
}

func countOverlaps(ctx context.Context, tx *gorm.DB, block *models.TimeBlock) (int64, error) {
	var n int64
	q := tx.WithContext(ctx).
		Model(&models.TimeBlock{}).
		Where("owner_id = ?", block.OwnerID).
		Where("start_time > ?", block.StartTime.Add(-MaxBlockSpan).UTC()).
		Where("start_time < ? AND end_time > ?", block.EndTime.UTC(), block.StartTime.UTC())
	if block.ID != "" {
		q = q.Where("id <> ?", block.ID)
	}
	err := q.Count(&n).Error
	return n, err
}
