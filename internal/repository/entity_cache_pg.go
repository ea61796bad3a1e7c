package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"biliticket/possync/internal/model"
)

const storeBatchSize = 200

type pgEntityCache struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPGEntityCache(db *gorm.DB) EntityCache {
	return &pgEntityCache{db: db, now: time.Now}
}

func (c *pgEntityCache) StoreProducts(ctx context.Context, products []model.Product, mode StoreMode) error {
	now := c.now()
	for i := range products {
		products[i].CachedAt = now
	}
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if mode == StoreModeReplace {
			if err := tx.Where("1 = 1").Delete(&model.Product{}).Error; err != nil {
				return err
			}
		}
		if len(products) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}},
			UpdateAll: true,
		}).CreateInBatches(products, storeBatchSize).Error
	})
}

func (c *pgEntityCache) QueryProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error) {
	q := c.db.WithContext(ctx).Order("name ASC")
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	var products []model.Product
	if err := q.Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (c *pgEntityCache) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	var product model.Product
	err := c.db.WithContext(ctx).Where("product_id = ?", productID).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (c *pgEntityCache) StoreOrders(ctx context.Context, orders []model.Order, mode StoreMode) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if mode == StoreModeReplace {
			// orders taken offline are keyed by their offline id, which must
			// stay resolvable; server copies are folded into them below
			if err := tx.Where("is_offline_order = ?", false).Delete(&model.Order{}).Error; err != nil {
				return err
			}
		}
		if len(orders) == 0 {
			return nil
		}

		fresh := make([]model.Order, 0, len(orders))
		for _, order := range orders {
			merged, err := foldIntoOfflineOrder(tx, order)
			if err != nil {
				return err
			}
			if !merged {
				fresh = append(fresh, order)
			}
		}
		if len(fresh) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			UpdateAll: true,
		}).CreateInBatches(fresh, storeBatchSize).Error
	})
}

// foldIntoOfflineOrder applies a server order to the offline row that was
// synced as it, if any.
func foldIntoOfflineOrder(tx *gorm.DB, order model.Order) (bool, error) {
	if order.OrderID == "" || model.IsOfflineID(order.OrderID) {
		return false, nil
	}
	res := tx.Model(&model.Order{}).
		Where("server_order_id = ? AND is_offline_order = ?", order.OrderID, true).
		Updates(map[string]interface{}{
			"status":   order.Status,
			"items":    order.Items,
			"subtotal": order.Subtotal,
			"tax":      order.Tax,
			"total":    order.Total,
			"synced":   true,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (c *pgEntityCache) QueryOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error) {
	q := c.db.WithContext(ctx).Order("created_at DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var orders []model.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *pgEntityCache) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	err := c.db.WithContext(ctx).
		Where("order_id = ? OR server_order_id = ?", id, id).
		Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *pgEntityCache) MarkOrderSynced(ctx context.Context, localID, serverID string) error {
	now := c.now()
	res := c.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_id = ?", localID).
		Updates(map[string]interface{}{
			"server_order_id": serverID,
			"synced":          true,
			"synced_at":       now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *pgEntityCache) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	res := c.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_id = ? OR server_order_id = ?", id, id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *pgEntityCache) DeleteOrder(ctx context.Context, id string) error {
	res := c.db.WithContext(ctx).Where("order_id = ?", id).Delete(&model.Order{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
