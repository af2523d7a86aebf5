/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// Default key prefix in Redis
	defaultKeyPrefix = "keybook:lock:"

	// Default lease - a crashed holder loses the lock after this long
	defaultLease = 10 * time.Second

	// Default retry interval - how often waiters poll for the lock
	defaultRetryInterval = 25 * time.Millisecond
)

// releaseScript deletes the key only while it still carries our token.
const releaseScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// RedisConfig configures the Redis-backed locker.
type RedisConfig struct {
	// Addr is the Redis server address
	Addr string

	// Password is the Redis password (optional)
	Password string

	// DB is the Redis database number
	DB int

	// KeyPrefix namespaces lock keys
	KeyPrefix string

	// Lease is how long a lock survives without being released
	Lease time.Duration

	// RetryInterval is how often a waiter retries SETNX
	RetryInterval time.Duration
}

// RedisLocker is a Locker shared by every instance pointing at the same Redis.
type RedisLocker struct {
	client *redis.Client
	logger zerolog.Logger
	config RedisConfig
}

// NewRedisLocker connects to Redis and returns a locker.
func NewRedisLocker(config RedisConfig, logger zerolog.Logger) (*RedisLocker, error) {
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaultKeyPrefix
	}
	if config.Lease <= 0 {
		config.Lease = defaultLease
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaultRetryInterval
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info().
		Str("redis_addr", config.Addr).
		Dur("lease", config.Lease).
		Msg("connected to Redis for block locks")

	return &RedisLocker{
		client: client,
		logger: logger.With().Str("component", "redis_locker").Logger(),
		config: config,
	}, nil
}

// Lock implements Locker by polling SET NX PX until it wins or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := l.config.KeyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.config.Lease).Result()
		if err != nil {
			return nil, fmt.Errorf("set lock %s: %w", key, err)
		}
		if ok {
			return l.unlocker(redisKey, token), nil
		}

		timer := time.NewTimer(l.config.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) unlocker(redisKey, token string) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := l.client.Eval(ctx, releaseScript, []string{redisKey}, token).Err(); err != nil {
				l.logger.Error().Err(err).Str("key", redisKey).Msg("failed to release lock")
			}
		})
	}
}

// Close closes the Redis connection.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
