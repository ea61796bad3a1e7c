package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"biliticket/possync/internal/model"
	"biliticket/possync/internal/repository"
)

// OfflineQueue is the ordered log of actions taken while offline. Callers
// append and read; only SyncEngine moves items between statuses.
type OfflineQueue struct {
	repo     repository.QueueRepository
	notifier *PendingNotifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewOfflineQueue(repo repository.QueueRepository, logger *zap.Logger) *OfflineQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OfflineQueue{
		repo:     repo,
		notifier: NewPendingNotifier(),
		logger:   logger,
		now:      time.Now,
	}
}

// Enqueue appends a pending action and returns its id.
func (q *OfflineQueue) Enqueue(ctx context.Context, kind model.ActionKind, payload any) (uint, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	now := q.now()
	item := &model.QueueItem{
		Type:           kind,
		Payload:        raw,
		Status:         model.QueueStatusPending,
		IdempotencyKey: uuid.NewString(),
		EnqueuedAt:     now,
		UpdatedAt:      now,
	}
	if scoped, ok := payload.(orderScoped); ok {
		item.OrderRef = scoped.orderRef()
	}
	if err := q.repo.Enqueue(ctx, item); err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	q.logger.Info("action queued", zap.Uint("id", item.ID), zap.String("type", string(kind)))
	q.publishPending(ctx)
	return item.ID, nil
}

// Drain lists items with status in enqueue order; an empty status lists all.
func (q *OfflineQueue) Drain(ctx context.Context, status model.QueueStatus) ([]model.QueueItem, error) {
	return q.repo.ListByStatus(ctx, status)
}

func (q *OfflineQueue) Count(ctx context.Context, status model.QueueStatus) (int64, error) {
	return q.repo.Count(ctx, status)
}

func (q *OfflineQueue) Get(ctx context.Context, id uint) (*model.QueueItem, error) {
	item, err := q.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrQueueItemNotFound
	}
	return item, err
}

// HasOpenActions reports whether actions on the cached order orderID are
// still pending or processing.
func (q *OfflineQueue) HasOpenActions(ctx context.Context, orderID string) (bool, error) {
	n, err := q.repo.CountOpen(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("count open actions for %s: %w", orderID, err)
	}
	return n > 0, nil
}

// Subscribe delivers the current pending count to fn, then every change.
func (q *OfflineQueue) Subscribe(ctx context.Context, fn PendingListener) (func(), error) {
	return q.notifier.Subscribe(fn, q.pendingLoader(ctx))
}

func (q *OfflineQueue) pendingLoader(ctx context.Context) func() (int64, error) {
	return func() (int64, error) {
		return q.repo.Count(ctx, model.QueueStatusPending)
	}
}

func (q *OfflineQueue) transition(ctx context.Context, id uint, status model.QueueStatus, lastError string) error {
	if err := q.repo.SetStatus(ctx, id, status, lastError); err != nil {
		return fmt.Errorf("queue item %d -> %s: %w", id, status, err)
	}
	return nil
}

func (q *OfflineQueue) publishPending(ctx context.Context) {
	if err := q.notifier.Refresh(q.pendingLoader(ctx)); err != nil {
		q.logger.Warn("count pending actions", zap.Error(err))
	}
}
