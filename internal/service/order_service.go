package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"biliticket/possync/internal/apiclient"
	"biliticket/possync/internal/model"
	"biliticket/possync/internal/repository"
)

// ModeReader reports whether the terminal is effectively offline.
type ModeReader interface {
	EffectiveOffline() bool
}

type CreateOrderInput struct {
	CustomerID    string            `json:"customerId"`
	Items         []model.OrderItem `json:"items"`
	PaymentMethod string            `json:"paymentMethod"`
}

type PaymentInput struct {
	OrderID   string  `json:"orderId"`
	Amount    float64 `json:"amount"`
	Method    string  `json:"method"`
	Reference string  `json:"reference"`
}

// PaymentResult carries either the server's payment or the queue entry that
// will submit it later.
type PaymentResult struct {
	Payment *apiclient.Payment `json:"payment,omitempty"`
	Queued  bool               `json:"queued"`
	QueueID uint               `json:"queueId,omitempty"`
}

type OrderServiceOptions struct {
	TerminalID string
	TaxRate    float64
	Logger     *zap.Logger
}

// OrderService takes orders live when online and queues them when not.
type OrderService struct {
	remote     RemoteAPI
	cache      repository.EntityCache
	queue      *OfflineQueue
	mode       ModeReader
	terminalID string
	taxRate    float64
	logger     *zap.Logger
	now        func() time.Time
}

func NewOrderService(remote RemoteAPI, cache repository.EntityCache, queue *OfflineQueue, mode ModeReader, opts OrderServiceOptions) *OrderService {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &OrderService{
		remote:     remote,
		cache:      cache,
		queue:      queue,
		mode:       mode,
		terminalID: opts.TerminalID,
		taxRate:    opts.TaxRate,
		logger:     opts.Logger,
		now:        time.Now,
	}
}

func validateItems(items []model.OrderItem) error {
	if len(items) == 0 {
		return ErrInvalidOrder
	}
	for _, item := range items {
		if item.ProductID == "" || item.Quantity <= 0 || item.Price < 0 {
			return ErrInvalidOrder
		}
	}
	return nil
}

func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	if err := validateItems(in.Items); err != nil {
		return nil, err
	}
	if s.mode.EffectiveOffline() {
		return s.createOffline(ctx, in)
	}

	created, err := s.remote.CreateOrder(ctx, apiclient.CreateOrderRequest{
		CustomerID:    in.CustomerID,
		TerminalID:    s.terminalID,
		Items:         in.Items,
		PaymentMethod: in.PaymentMethod,
	})
	if apiclient.IsNetworkError(err) {
		s.logger.Warn("server unreachable, taking order offline", zap.Error(err))
		return s.createOffline(ctx, in)
	}
	if err != nil {
		return nil, err
	}
	created.Synced = true
	if err := s.cache.StoreOrders(ctx, []model.Order{*created}, repository.StoreModeUpsert); err != nil {
		return nil, fmt.Errorf("cache order %s: %w", created.OrderID, err)
	}
	return created, nil
}

func (s *OrderService) createOffline(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	now := s.now()
	subtotal, tax, total := model.Totals(in.Items, s.taxRate)
	order := model.Order{
		OrderID:        model.OfflineIDPrefix + uuid.NewString(),
		CustomerID:     in.CustomerID,
		TerminalID:     s.terminalID,
		Items:          in.Items,
		Subtotal:       subtotal,
		Tax:            tax,
		Total:          total,
		Status:         model.OrderStatusPending,
		PaymentMethod:  in.PaymentMethod,
		IsOfflineOrder: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.cache.StoreOrders(ctx, []model.Order{order}, repository.StoreModeUpsert); err != nil {
		return nil, fmt.Errorf("cache offline order: %w", err)
	}
	if _, err := s.queue.Enqueue(ctx, model.ActionCreateOrder, CreateOrderPayload{
		OrderID:       order.OrderID,
		CustomerID:    order.CustomerID,
		TerminalID:    order.TerminalID,
		Items:         order.Items,
		PaymentMethod: order.PaymentMethod,
	}); err != nil {
		// an order with no create action would never reach the server
		if derr := s.cache.DeleteOrder(context.WithoutCancel(ctx), order.OrderID); derr != nil {
			s.logger.Error("drop unqueued offline order", zap.String("order_id", order.OrderID), zap.Error(derr))
		}
		return nil, err
	}
	return &order, nil
}

// GetOrder serves offline orders and offline lookups from the cache and
// refreshes everything else from the server.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	cached, err := s.cache.GetOrder(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if s.mode.EffectiveOffline() || (cached != nil && cached.IsOfflineOrder) {
		if cached == nil {
			return nil, ErrOrderNotFound
		}
		return cached, nil
	}

	order, err := s.remote.GetOrder(ctx, id)
	if err != nil {
		if apiclient.IsNetworkError(err) && cached != nil {
			return cached, nil
		}
		return nil, err
	}
	order.Synced = true
	if err := s.cache.StoreOrders(ctx, []model.Order{*order}, repository.StoreModeUpsert); err != nil {
		return nil, fmt.Errorf("cache order %s: %w", order.OrderID, err)
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.Order, error) {
	return s.cache.QueryOrders(ctx, filter)
}

// RefreshOrders replaces the cached server orders with the server's list.
// Orders taken offline are kept.
func (s *OrderService) RefreshOrders(ctx context.Context) (int, error) {
	orders, err := s.remote.SearchOrders(ctx, apiclient.OrderSearch{})
	if err != nil {
		return 0, err
	}
	for i := range orders {
		orders[i].Synced = true
	}
	if err := s.cache.StoreOrders(ctx, orders, repository.StoreModeReplace); err != nil {
		return 0, fmt.Errorf("cache orders: %w", err)
	}
	return len(orders), nil
}

// mustQueue reports whether an action on order has to go through the queue:
// the terminal is offline, the order itself is still waiting in it, or
// earlier actions on it have not been replayed yet.
func (s *OrderService) mustQueue(ctx context.Context, order *model.Order) (bool, error) {
	if s.mode.EffectiveOffline() {
		return true, nil
	}
	if order == nil {
		return false, nil
	}
	if order.IsOfflineOrder && order.ServerOrderID == "" {
		return true, nil
	}
	return s.queue.HasOpenActions(ctx, order.OrderID)
}

func (s *OrderService) lookup(ctx context.Context, id string) (*model.Order, error) {
	order, err := s.cache.GetOrder(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return order, err
}

func (s *OrderService) ProcessPayment(ctx context.Context, in PaymentInput) (*PaymentResult, error) {
	order, err := s.lookup(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if in.Amount <= 0 {
		if order == nil {
			return nil, ErrOrderNotFound
		}
		in.Amount = order.Total
	}

	queued, err := s.mustQueue(ctx, order)
	if err != nil {
		return nil, err
	}
	if queued {
		if order == nil {
			return nil, ErrOrderNotFound
		}
		id, err := s.queue.Enqueue(ctx, model.ActionProcessPayment, PaymentPayload{
			OrderID:    order.OrderID,
			Amount:     in.Amount,
			Method:     in.Method,
			Reference:  in.Reference,
			CapturedAt: s.now(),
		})
		if err != nil {
			return nil, err
		}
		if err := s.cache.UpdateOrderStatus(ctx, order.OrderID, model.OrderStatusPaid); err != nil {
			return nil, err
		}
		return &PaymentResult{Queued: true, QueueID: id}, nil
	}

	remoteID := in.OrderID
	if order != nil {
		remoteID = order.RemoteID()
	}
	payment, err := s.remote.ProcessPayment(ctx, apiclient.PaymentRequest{
		OrderID:   remoteID,
		Amount:    in.Amount,
		Method:    in.Method,
		Reference: in.Reference,
	})
	if err != nil {
		return nil, err
	}
	if order != nil {
		if err := s.cache.UpdateOrderStatus(ctx, order.OrderID, model.OrderStatusPaid); err != nil {
			return nil, err
		}
	}
	return &PaymentResult{Payment: payment}, nil
}

func (s *OrderService) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) (*model.Order, error) {
	return s.changeStatus(ctx, id, status, func(remoteID string) error {
		_, err := s.remote.UpdateOrderStatus(ctx, remoteID, status)
		return err
	}, model.ActionUpdateOrderStatus, func(localID string) any {
		return OrderStatusPayload{OrderID: localID, Status: status}
	})
}

func (s *OrderService) CancelOrder(ctx context.Context, id, reason string) (*model.Order, error) {
	return s.changeStatus(ctx, id, model.OrderStatusCancelled, func(remoteID string) error {
		_, err := s.remote.CancelOrder(ctx, remoteID, reason)
		return err
	}, model.ActionCancelOrder, func(localID string) any {
		return CancelOrderPayload{OrderID: localID, Reason: reason}
	})
}

func (s *OrderService) changeStatus(
	ctx context.Context,
	id string,
	status model.OrderStatus,
	live func(remoteID string) error,
	kind model.ActionKind,
	payload func(localID string) any,
) (*model.Order, error) {
	order, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	queued, err := s.mustQueue(ctx, order)
	if err != nil {
		return nil, err
	}
	if queued {
		if order == nil {
			return nil, ErrOrderNotFound
		}
		if _, err := s.queue.Enqueue(ctx, kind, payload(order.OrderID)); err != nil {
			return nil, err
		}
	} else {
		remoteID := id
		if order != nil {
			remoteID = order.RemoteID()
		}
		if err := live(remoteID); err != nil {
			return nil, err
		}
		if order == nil {
			return s.GetOrder(ctx, id)
		}
	}

	if err := s.cache.UpdateOrderStatus(ctx, order.OrderID, status); err != nil {
		return nil, err
	}
	order.Status = status
	return order, nil
}
