package repository

import (
	"context"
	"time"
)

// DurableStore is the large-capacity tier. Every row carries an expiry; an
// expired row is purged on read and reported as absent.
type DurableStore interface {
	Put(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	PurgeExpired(ctx context.Context) (int64, error)
}
