package repository

import (
	"context"

	"biliticket/possync/internal/model"
)

// QueueRepository persists the offline action log.
type QueueRepository interface {
	Enqueue(ctx context.Context, item *model.QueueItem) error
	Get(ctx context.Context, id uint) (*model.QueueItem, error)
	// ListByStatus returns items in enqueue order; an empty status lists all.
	ListByStatus(ctx context.Context, status model.QueueStatus) ([]model.QueueItem, error)
	// SetStatus moves an item to status, recording lastError and, when
	// entering processing, bumping the attempt counter.
	SetStatus(ctx context.Context, id uint, status model.QueueStatus, lastError string) error
	// TransitionAll moves every item in from to status and returns the count moved.
	TransitionAll(ctx context.Context, from, to model.QueueStatus, lastError string) (int64, error)
	Count(ctx context.Context, status model.QueueStatus) (int64, error)
	// CountOpen counts pending and processing items targeting orderRef.
	CountOpen(ctx context.Context, orderRef string) (int64, error)
}
