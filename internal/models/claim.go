/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Claim is the exclusive link between one claimant and one time block.
// A block carries at most one claim, ever.
type Claim struct {
	ID          string `gorm:"size:36;primaryKey" json:"id"`
	ClaimantID  string `gorm:"size:36;not null;index:idx_claims_claimant" json:"claimant_id"`
	TimeBlockID string `gorm:"size:36;not null;uniqueIndex:idx_claims_time_block" json:"time_block_id"`

	Claimant *User `gorm:"foreignKey:ClaimantID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (Claim) TableName() string {
	return "claims"
}
