package service

import (
	"context"

	"biliticket/possync/internal/apiclient"
	"biliticket/possync/internal/model"
)

// OrderAPI is the remote order surface; *apiclient.Client implements it.
type OrderAPI interface {
	CreateOrder(ctx context.Context, req apiclient.CreateOrderRequest) (*model.Order, error)
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	SearchOrders(ctx context.Context, search apiclient.OrderSearch) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) (*model.Order, error)
	CancelOrder(ctx context.Context, id, reason string) (*model.Order, error)
}

type PaymentAPI interface {
	ProcessPayment(ctx context.Context, req apiclient.PaymentRequest) (*apiclient.Payment, error)
	SubmitOfflinePayment(ctx context.Context, req apiclient.OfflinePayment) (*apiclient.Payment, error)
}

type InventoryAPI interface {
	SearchInventory(ctx context.Context, search apiclient.InventorySearch) ([]model.Product, error)
	GetProduct(ctx context.Context, productID string) (*model.Product, error)
}

type AuthAPI interface {
	Login(ctx context.Context, username, password string) (*apiclient.Session, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*apiclient.User, error)
	StoredUser(ctx context.Context) (*apiclient.User, error)
	AccessToken(ctx context.Context) (string, error)
}

// RemoteAPI is everything the sync engine replays against.
type RemoteAPI interface {
	OrderAPI
	PaymentAPI
}

var (
	_ RemoteAPI    = (*apiclient.Client)(nil)
	_ InventoryAPI = (*apiclient.Client)(nil)
	_ AuthAPI      = (*apiclient.Client)(nil)
)
