package repository

import (
	"context"

	"biliticket/possync/internal/model"
)

// StoreMode tells the entity cache whether a batch is the complete dataset.
type StoreMode int

const (
	// StoreModeUpsert inserts or updates rows by key and leaves other rows alone.
	StoreModeUpsert StoreMode = iota
	// StoreModeReplace clears the collection and inserts the batch in one transaction.
	StoreModeReplace
)

func (m StoreMode) String() string {
	if m == StoreModeReplace {
		return "replace"
	}
	return "upsert"
}

type ProductFilter struct {
	Category string
}

type OrderFilter struct {
	Status model.OrderStatus
}

// EntityCache is the local replica of products and orders.
type EntityCache interface {
	StoreProducts(ctx context.Context, products []model.Product, mode StoreMode) error
	QueryProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error)
	GetProduct(ctx context.Context, productID string) (*model.Product, error)

	StoreOrders(ctx context.Context, orders []model.Order, mode StoreMode) error
	QueryOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error)
	// GetOrder resolves id against both the local and the server-assigned id.
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	MarkOrderSynced(ctx context.Context, localID, serverID string) error
	UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error
	// DeleteOrder removes the row keyed by the local order id.
	DeleteOrder(ctx context.Context, id string) error
}
