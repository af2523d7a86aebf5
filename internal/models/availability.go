/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Quantum is the fixed length of one schedulable unit.
const Quantum = time.Hour

// TimeBlock is one published, half-open availability window [StartTime, EndTime)
// owned by a single owner.
type TimeBlock struct {
	ID        string    `gorm:"size:36;primaryKey" json:"id"`
	OwnerID   string    `gorm:"size:36;not null;index:idx_time_blocks_owner;uniqueIndex:idx_time_blocks_unique_slot,priority:1" json:"owner_id"`
	StartTime time.Time `gorm:"not null;uniqueIndex:idx_time_blocks_unique_slot,priority:2" json:"start_time"`
	EndTime   time.Time `gorm:"not null;uniqueIndex:idx_time_blocks_unique_slot,priority:3" json:"end_time"`

	// Relationships
	Claim *Claim `gorm:"foreignKey:TimeBlockID;constraint:OnDelete:CASCADE" json:"claim,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (TimeBlock) TableName() string {
	return "time_blocks"
}

// Duration returns the length of the block.
func (b *TimeBlock) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}

// Overlaps reports whether the two half-open intervals intersect. Touching
// endpoints do not overlap.
func (b *TimeBlock) Overlaps(other *TimeBlock) bool {
	return b.StartTime.Before(other.EndTime) && b.EndTime.After(other.StartTime)
}

// Claimed reports whether a claim was loaded for the block.
func (b *TimeBlock) Claimed() bool {
	return b.Claim != nil
}
