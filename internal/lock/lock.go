/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package lock provides keyed mutual exclusion for time blocks and owner
// schedules. It stands in for SELECT ... FOR UPDATE on dialects that ignore
// row locks, and for cross-instance exclusion when Redis is configured.
package lock

import (
	"context"
	"fmt"
)

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func()

// Locker acquires an exclusive lock on key, blocking until it is free or ctx
// is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// BlockKey is the lock key guarding allocation of one time block.
func BlockKey(blockID string) string {
	return fmt.Sprintf("block:%s", blockID)
}

// OwnerKey is the lock key guarding ingestion into one owner's schedule.
func OwnerKey(ownerID string) string {
	return fmt.Sprintf("owner:%s", ownerID)
}

// RowLockOnly is used when the database honours row locks. It takes no lock
// of its own.
type RowLockOnly struct{}

// Lock implements Locker.
func (RowLockOnly) Lock(ctx context.Context, _ string) (Unlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return func() {}, nil
}
