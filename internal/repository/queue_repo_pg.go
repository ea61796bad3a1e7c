package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"biliticket/possync/internal/model"
)

type pgQueueRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPGQueueRepository(db *gorm.DB) QueueRepository {
	return &pgQueueRepository{db: db, now: time.Now}
}

func (r *pgQueueRepository) Enqueue(ctx context.Context, item *model.QueueItem) error {
	if item.Status == "" {
		item.Status = model.QueueStatusPending
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = r.now()
	}
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *pgQueueRepository) Get(ctx context.Context, id uint) (*model.QueueItem, error) {
	var item model.QueueItem
	err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *pgQueueRepository) ListByStatus(ctx context.Context, status model.QueueStatus) ([]model.QueueItem, error) {
	q := r.db.WithContext(ctx).Order("id ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var items []model.QueueItem
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *pgQueueRepository) SetStatus(ctx context.Context, id uint, status model.QueueStatus, lastError string) error {
	updates := map[string]interface{}{
		"status":     status,
		"last_error": lastError,
		"updated_at": r.now(),
	}
	if status == model.QueueStatusProcessing {
		updates["attempts"] = gorm.Expr("attempts + 1")
	}
	res := r.db.WithContext(ctx).
		Model(&model.QueueItem{}).
		Where("id = ?", id).
		UpdateColumns(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgQueueRepository) TransitionAll(ctx context.Context, from, to model.QueueStatus, lastError string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.QueueItem{}).
		Where("status = ?", from).
		UpdateColumns(map[string]interface{}{
			"status":     to,
			"last_error": lastError,
			"updated_at": r.now(),
		})
	return res.RowsAffected, res.Error
}

func (r *pgQueueRepository) Count(ctx context.Context, status model.QueueStatus) (int64, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(&model.QueueItem{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Count(&n).Error
	return n, err
}

func (r *pgQueueRepository) CountOpen(ctx context.Context, orderRef string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.QueueItem{}).
		Where("order_ref = ? AND status IN ?", orderRef,
			[]model.QueueStatus{model.QueueStatusPending, model.QueueStatusProcessing}).
		Count(&n).Error
	return n, err
}
