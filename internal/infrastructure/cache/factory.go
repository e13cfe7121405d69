package cache

import (
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// IdempotencyStoreFactory picks an idempotency store for the available
// infrastructure
type IdempotencyStoreFactory struct {
	keyPrefix             string
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// IdempotencyStoreFactoryOption is a functional option for configuring the factory
type IdempotencyStoreFactoryOption func(*IdempotencyStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether a missing Redis client falls back to
// the in-memory store. Default is true.
func WithInMemoryFallback(allow bool) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// WithKeyPrefix namespaces Redis keys
func WithKeyPrefix(prefix string) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.keyPrefix = prefix
	}
}

// NewIdempotencyStoreFactory creates a new factory
func NewIdempotencyStoreFactory(opts ...IdempotencyStoreFactoryOption) *IdempotencyStoreFactory {
	f := &IdempotencyStoreFactory{
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore returns a Redis store when client is non-nil, otherwise the
// in-memory store if fallback is allowed
func (f *IdempotencyStoreFactory) CreateStore(client redis.UniversalClient) (shared.IdempotencyStore, error) {
	if client != nil {
		f.logger.Info("using Redis idempotency store")
		return NewRedisIdempotencyStore(client, f.keyPrefix), nil
	}
	if !f.allowInMemoryFallback {
		return nil, ErrRedisRequired
	}

	// In-memory keys are not shared across instances.
	f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store")
	return NewInMemoryIdempotencyStore(), nil
}
