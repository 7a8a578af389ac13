package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers which (handler, event) pairs were processed
type IdempotencyStore interface {
	// MarkProcessed claims key for ttl. It returns true if this call claimed
	// it, false if the key is already held.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether key is currently held
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Release drops key so a failed event can be delivered again
	Release(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a processed key is remembered. Default: 24 hours
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled
	Enabled bool

	// ReleaseOnFailure frees the key when the handler fails so a redelivery
	// is processed instead of being skipped as a duplicate
	ReleaseOnFailure bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:              24 * time.Hour,
		Enabled:          true,
		ReleaseOnFailure: true,
	}
}
