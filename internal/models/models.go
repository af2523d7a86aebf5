/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of roles an account can hold.
type Role string

const (
	// RoleOwner publishes availability windows.
	RoleOwner Role = "owner"
	// RoleClaimant books published windows.
	RoleClaimant Role = "claimant"
)

// ParseRole converts a role tag into a Role, rejecting anything outside the
// closed set. Legacy tags from the original property-management deployment are
// mapped onto their canonical equivalents.
func ParseRole(tag string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case string(RoleOwner), "property_manager":
		return RoleOwner, nil
	case string(RoleClaimant), "tenant":
		return RoleClaimant, nil
	default:
		return "", fmt.Errorf("unknown role %q", tag)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleClaimant
}

// User represents an account that either owns a schedule or books from one.
type User struct {
	ID           string `gorm:"size:36;primaryKey" json:"id"`
	Name         string `gorm:"type:varchar(255);not null" json:"name"`
	Email        string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"type:varchar(255)" json:"-"`
	Role         Role   `gorm:"type:varchar(16);index;not null" json:"role"`

	TimeBlocks []TimeBlock `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (User) TableName() string {
	return "users"
}

// Actor returns the resolved identity used by the engines.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role}
}

// Actor is a resolved caller identity. The engines never look identities up
// themselves; callers hand them an Actor.
type Actor struct {
	ID   string
	Role Role
}

// IsOwner reports whether the actor may publish availability.
func (a Actor) IsOwner() bool {
	return a.Role == RoleOwner
}

// IsClaimant reports whether the actor may book blocks.
func (a Actor) IsClaimant() bool {
	return a.Role == RoleClaimant
}
