package repository

import (
	"context"
	"time"
)

// StateStore abstracts the fast tier: small, low-latency key-value state.
// Implementations: Redis (shared till server) or in-memory (standalone till).
// Get returns (nil, nil) for an absent key.
type StateStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
}
