/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/daisho-wakazashi/keybook/internal/auth"
	"github.com/daisho-wakazashi/keybook/internal/availability"
	"github.com/daisho-wakazashi/keybook/internal/booking"
	"github.com/daisho-wakazashi/keybook/internal/clock"
	"github.com/daisho-wakazashi/keybook/internal/config"
	"github.com/daisho-wakazashi/keybook/internal/db"
	"github.com/daisho-wakazashi/keybook/internal/eventbus"
	"github.com/daisho-wakazashi/keybook/internal/lock"
)

// Services bundles storage, fan-out and the two engines. The HTTP server and
// the CLI share it.
type Services struct {
	DB           *gorm.DB
	Bus          eventbus.Bus
	Locker       lock.Locker
	Users        *auth.Users
	Availability *availability.Service
	Booking      *booking.Service

	closers []func() error
}

// OpenServices connects to the database, applies migrations and wires the
// engines according to cfg.
func OpenServices(cfg *config.Config, logger zerolog.Logger) (*Services, error) {
	s := &Services{}

	database, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	s.DB = database
	s.deferClose(func() error { return db.Close(database) })

	if err := db.Migrate(database); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	bus, err := eventbus.New(cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("event bus: %w", err)
	}
	s.Bus = bus
	s.deferClose(bus.Close)

	locker, closeLocker, err := NewLocker(cfg, database, logger)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("locker: %w", err)
	}
	s.Locker = locker
	s.deferClose(closeLocker)

	clk := clock.System{}
	s.Users = auth.NewUsers(database)
	s.Availability = availability.NewService(database, clk, bus, locker, cfg.Location(), logger)
	s.Booking = booking.NewService(database, clk, bus, locker, logger)

	return s, nil
}

// NewLocker picks the block locker: Redis when configured, otherwise the
// database row lock alone where the dialect honours it, otherwise an
// in-process keyed mutex.
func NewLocker(cfg *config.Config, database *gorm.DB, logger zerolog.Logger) (lock.Locker, func() error, error) {
	noop := func() error { return nil }

	if cfg.LockBackend == config.LockRedis {
		rl, err := lock.NewRedisLocker(lock.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Lease:    cfg.LockLease,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return rl, rl.Close, nil
	}

	if db.SupportsRowLocks(database) {
		logger.Debug().Str("dialect", database.Dialector.Name()).Msg("using database row locks for allocation")
		return lock.RowLockOnly{}, noop, nil
	}

	logger.Debug().Str("dialect", database.Dialector.Name()).Msg("dialect has no row locks, using in-process block locks")
	return lock.NewKeyedMutex(), noop, nil
}

// Close releases resources in reverse order.
func (s *Services) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

func (s *Services) deferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}
