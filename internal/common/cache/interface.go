// Package cache provides the key-value cache used for problem data and submission status.
package cache

import (
	"context"
	"time"
)

// Cache is the subset of redis operations the judge relies on.
// Get returns "" with a nil error when the key does not exist.
type Cache interface {
	Ping(ctx context.Context) error
	Close() error

	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Counter counts events inside a fixed window.
type Counter interface {
	// IncrWindow bumps key and returns the count for the current window.
	// The window starts with the first increment.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}
