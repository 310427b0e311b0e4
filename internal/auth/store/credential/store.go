// Package credential is the key/value store with per-key expiry that the
// revocation registry, OTP codes and the permission cache are built on.
//
// Two strategies exist: Redis for multi-instance deployments and an
// in-process LRU for a single instance. Both report a missing or expired key
// as sentinel.ErrNotFound and an unreachable backend as sentinel.ErrUnavailable.
package credential

import (
	"context"
	"time"
)

// Store is the contract every strategy satisfies.
type Store interface {
	// Get returns the value under key or sentinel.ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set writes value with the given ttl, overwriting any previous value.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetMany writes every entry with the same ttl.
	SetMany(ctx context.Context, entries map[string]string, ttl time.Duration) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)
}
