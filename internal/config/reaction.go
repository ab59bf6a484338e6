package config

import (
	"strings"
	"time"
)

// Lock backends for per-movie serialization of reaction changes.
const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

// ReactionConfig tunes the reaction manager and the counter reconciler.
//
// LockBackend selects how read-modify-write on a movie is serialized:
// "local" keeps a keyed mutex inside the process, "redis" takes a
// SET NX lock so several instances can share one database.  LockTTL bounds
// how long a crashed holder can keep a redis lock; LockWait bounds how long
// a request waits for a busy movie before failing with a conflict.
type ReactionConfig struct {
	LockBackend       string
	LockTTL           time.Duration
	LockWait          time.Duration
	ReconcileInterval time.Duration // 0 disables the periodic sweep
	ReconcileBatch    int
}

// LoadReactionConfig reads REACTION_* and RECONCILE_* variables.
func LoadReactionConfig() ReactionConfig {
	cfg := ReactionConfig{
		LockBackend:       strings.ToLower(getenv("REACTION_LOCK_BACKEND", LockBackendLocal)),
		LockTTL:           envDur("REACTION_LOCK_TTL", 5*time.Second),
		LockWait:          envDur("REACTION_LOCK_WAIT", 2*time.Second),
		ReconcileInterval: envDur("RECONCILE_INTERVAL", 15*time.Minute),
		ReconcileBatch:    envInt("RECONCILE_BATCH", 500),
	}
	if cfg.LockBackend != LockBackendRedis {
		cfg.LockBackend = LockBackendLocal
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 2 * time.Second
	}
	if cfg.LockTTL < cfg.LockWait {
		cfg.LockTTL = cfg.LockWait
	}
	if cfg.ReconcileBatch < 1 {
		cfg.ReconcileBatch = 500
	}
	return cfg
}

// LoadLogConfig returns the level and format consumed by logging.Init.
func LoadLogConfig() (level, format string) {
	return getenv("LOG_LEVEL", "info"), getenv("LOG_FORMAT", "json")
}
