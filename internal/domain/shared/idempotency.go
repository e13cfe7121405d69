package shared

import (
	"context"
	"time"
)

// IdempotencyStore maps client supplied idempotency keys to the id of the
// resource the first request created.
type IdempotencyStore interface {
	// Remember stores value under key unless the key is already taken.
	// It returns the stored value and true when this call claimed the key,
	// or the existing value and false otherwise.
	Remember(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error)

	// Forget releases a key so a corrected request can reuse it
	Forget(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a key stays bound to its first result
	TTL time.Duration

	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
