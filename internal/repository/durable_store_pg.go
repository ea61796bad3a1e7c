package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"biliticket/possync/internal/model"
)

type pgDurableStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPGDurableStore returns a gorm-backed durable tier over the stored_values table.
func NewPGDurableStore(db *gorm.DB) DurableStore {
	return &pgDurableStore{db: db, now: time.Now}
}

func (s *pgDurableStore) Put(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	row := model.StoredValue{Key: key, Value: value, ExpiresAt: expiresAt}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).
		Create(&row).Error
}

func (s *pgDurableStore) Get(ctx context.Context, key string) ([]byte, error) {
	var row model.StoredValue
	err := s.db.WithContext(ctx).Where(keyIs(key)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if row.Expired(s.now()) {
		if err := s.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return row.Value, nil
}

func (s *pgDurableStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where(keyIs(key)).Delete(&model.StoredValue{}).Error
}

func (s *pgDurableStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Where("1 = 1").Delete(&model.StoredValue{}).Error
}

func (s *pgDurableStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&model.StoredValue{})
	return res.RowsAffected, res.Error
}

func keyIs(key string) clause.Eq {
	return clause.Eq{Column: clause.Column{Name: "key"}, Value: key}
}
