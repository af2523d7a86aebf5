/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package booking

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/daisho-wakazashi/keybook/internal/models"
)

// ValidateClaim checks a candidate claim for claimant on block. It performs no
// locking of its own; callers that need exclusivity must hold the block lock.
func ValidateClaim(ctx context.Context, tx *gorm.DB, claimant models.Actor, block *models.TimeBlock) (models.Violations, error) {
	var vs models.Violations

	var user models.User
	err := tx.WithContext(ctx).Select("id").Where("id = ?", claimant.ID).Take(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		vs.Add("claimant", "must exist")
	case err != nil:
		return nil, fmt.Errorf("load claimant: %w", err)
	}

	if !claimant.IsClaimant() {
		vs.Add("claimant", "must be a claimant")
	}

	var taken int64
	if err := tx.WithContext(ctx).Model(&models.Claim{}).Where("time_block_id = ?", block.ID).Count(&taken).Error; err != nil {
		return nil, fmt.Errorf("count claims: %w", err)
	}
	if taken > 0 {
		vs.Add("time_block", "has already been taken")
	}

	return vs, nil
}
