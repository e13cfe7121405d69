package cache

import "errors"

// ErrRedisRequired is returned when Redis is mandatory but not configured
var ErrRedisRequired = errors.New("cache: Redis is required for idempotency but unavailable")
