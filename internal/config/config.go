/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// LockBackend selects how block locks are taken on top of the database.
type LockBackend string

const (
	// LockMemory uses an in-process keyed mutex when the database has no row locks.
	LockMemory LockBackend = "memory"
	// LockRedis uses a Redis lease shared by every instance.
	LockRedis LockBackend = "redis"
)

// EventBusBackend selects where notifications are fanned out.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	DBBackend     DatabaseBackend
	DBDSN         string
	JWTSigningKey string
	TokenTTL      time.Duration
	MetricsBind   string

	// Timezone is the reference location used to read zone-less instants and
	// to split batches into calendar days.
	Timezone string

	LockBackend LockBackend
	LockLease   time.Duration
	EventBus    EventBusBackend

	// Redis (locks and event fan-out)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NATSURL    string
	InstanceID string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   getEnvAny([]string{"KEYBOOK_ENV"}, "development"),
		HTTPBind:      getEnvAny([]string{"KEYBOOK_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:      getEnvIntAny([]string{"KEYBOOK_HTTP_PORT", "PORT"}, 8080),
		DBBackend:     DatabaseBackend(getEnvAny([]string{"KEYBOOK_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:         getEnvAny([]string{"KEYBOOK_DB_DSN", "DATABASE_URL"}, ""),
		JWTSigningKey: getEnvAny([]string{"KEYBOOK_JWT_SIGNING_KEY"}, ""),
		TokenTTL:      time.Duration(getEnvIntAny([]string{"KEYBOOK_TOKEN_TTL_MINUTES"}, 60*24)) * time.Minute,
		MetricsBind:   getEnvAny([]string{"KEYBOOK_METRICS_BIND"}, "127.0.0.1:9000"),
		Timezone:      getEnvAny([]string{"KEYBOOK_TIMEZONE"}, "UTC"),

		LockBackend: LockBackend(getEnvAny([]string{"KEYBOOK_LOCK_BACKEND"}, string(LockMemory))),
		LockLease:   time.Duration(getEnvIntAny([]string{"KEYBOOK_LOCK_LEASE_SECONDS"}, 30)) * time.Second,
		EventBus:    EventBusBackend(getEnvAny([]string{"KEYBOOK_EVENT_BUS"}, string(EventBusMemory))),

		RedisAddr:     getEnvAny([]string{"KEYBOOK_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"KEYBOOK_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"KEYBOOK_REDIS_DB"}, 0),
		NATSURL:       getEnvAny([]string{"KEYBOOK_NATS_URL", "NATS_URL"}, "nats://127.0.0.1:4222"),
		InstanceID:    getEnvAny([]string{"KEYBOOK_INSTANCE_ID"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"KEYBOOK_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"KEYBOOK_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"KEYBOOK_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("KEYBOOK_DB_DSN or DATABASE_URL must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("KEYBOOK_JWT_SIGNING_KEY must be provided")
	}

	if cfg.LockBackend != LockMemory && cfg.LockBackend != LockRedis {
		return nil, fmt.Errorf("unsupported lock backend %q", cfg.LockBackend)
	}

	switch cfg.EventBus {
	case EventBusMemory, EventBusRedis, EventBusNATS:
	default:
		return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid KEYBOOK_TIMEZONE %q: %w", cfg.Timezone, err)
	}

	if strings.EqualFold(cfg.Environment, "production") && len(cfg.JWTSigningKey) < 32 {
		return nil, fmt.Errorf("KEYBOOK_JWT_SIGNING_KEY must be at least 32 bytes in production")
	}

	return cfg, nil
}

// Location returns the reference location. Load has already validated it.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
