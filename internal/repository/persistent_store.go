package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultSizeThreshold = 100 * 1024
	DefaultDurableTTL    = 7 * 24 * time.Hour
)

// PersistentStore is the tiered key/value store shared by every component.
// Callers never see which tier holds a key.
type PersistentStore interface {
	Set(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	SetString(ctx context.Context, key, value string) error
	GetString(ctx context.Context, key string) (string, error)
}

type TieredOptions struct {
	// SizeThreshold is the smallest value size, in bytes, routed to the durable tier.
	SizeThreshold int
	DurableTTL    time.Duration
	Logger        *zap.Logger
	Now           func() time.Time
}

type tieredStore struct {
	fast      StateStore
	durable   DurableStore
	threshold int
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewTieredStore(fast StateStore, durable DurableStore, opts TieredOptions) PersistentStore {
	if opts.SizeThreshold <= 0 {
		opts.SizeThreshold = DefaultSizeThreshold
	}
	if opts.DurableTTL <= 0 {
		opts.DurableTTL = DefaultDurableTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &tieredStore{
		fast:      fast,
		durable:   durable,
		threshold: opts.SizeThreshold,
		ttl:       opts.DurableTTL,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

func (s *tieredStore) Set(ctx context.Context, key string, value []byte) error {
	if len(value) < s.threshold {
		err := s.fast.Set(ctx, key, value, 0)
		if err == nil {
			// a previous oversized write may still sit in the durable tier
			if err := s.durable.Delete(ctx, key); err != nil {
				return fmt.Errorf("durable delete %s: %w", key, err)
			}
			return nil
		}
		if !errors.Is(err, ErrQuotaExceeded) {
			return fmt.Errorf("fast tier set %s: %w", key, err)
		}
		s.logger.Warn("fast tier quota exceeded, falling back to durable tier",
			zap.String("key", key), zap.Int("size", len(value)))
	}
	return s.setDurable(ctx, key, value)
}

func (s *tieredStore) setDurable(ctx context.Context, key string, value []byte) error {
	if err := s.durable.Put(ctx, key, value, s.now().Add(s.ttl)); err != nil {
		return fmt.Errorf("durable set %s: %w", key, err)
	}
	if err := s.fast.Delete(ctx, key); err != nil {
		return fmt.Errorf("fast tier delete %s: %w", key, err)
	}
	return nil
}

func (s *tieredStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.fast.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fast tier get %s: %w", key, err)
	}
	if v != nil {
		return v, nil
	}
	v, err = s.durable.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("durable get %s: %w", key, err)
	}
	return v, nil
}

func (s *tieredStore) Remove(ctx context.Context, key string) error {
	if err := s.fast.Delete(ctx, key); err != nil {
		return fmt.Errorf("fast tier delete %s: %w", key, err)
	}
	if err := s.durable.Delete(ctx, key); err != nil {
		return fmt.Errorf("durable delete %s: %w", key, err)
	}
	return nil
}

func (s *tieredStore) Clear(ctx context.Context) error {
	if err := s.fast.Clear(ctx); err != nil {
		return fmt.Errorf("fast tier clear: %w", err)
	}
	if err := s.durable.Clear(ctx); err != nil {
		return fmt.Errorf("durable clear: %w", err)
	}
	return nil
}

func (s *tieredStore) SetString(ctx context.Context, key, value string) error {
	return s.Set(ctx, key, []byte(value))
}

// GetString returns "" for an absent key.
func (s *tieredStore) GetString(ctx context.Context, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if err != nil || v == nil {
		return "", err
	}
	return string(v), nil
}
