package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"biliticket/possync/internal/model"
)

type CreateOrderRequest struct {
	// ClientOrderID is the till's own id for the order (offline id when queued).
	ClientOrderID string            `json:"clientOrderId,omitempty"`
	CustomerID    string            `json:"customerId,omitempty"`
	TerminalID    string            `json:"terminalId,omitempty"`
	Items         []model.OrderItem `json:"items"`
	PaymentMethod string            `json:"paymentMethod,omitempty"`
}

type UpdateOrderRequest struct {
	CustomerID    string            `json:"customerId,omitempty"`
	Items         []model.OrderItem `json:"items,omitempty"`
	PaymentMethod string            `json:"paymentMethod,omitempty"`
}

type OrderSearch struct {
	Status model.OrderStatus
	Query  string
	Limit  int
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*model.Order, error) {
	var order model.Order
	if err := c.doJSON(ctx, http.MethodPost, "/api/orders", nil, req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	if err := c.doJSON(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(id), nil, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) SearchOrders(ctx context.Context, search OrderSearch) ([]model.Order, error) {
	q := url.Values{}
	if search.Status != "" {
		q.Set("status", string(search.Status))
	}
	if search.Query != "" {
		q.Set("q", search.Query)
	}
	if search.Limit > 0 {
		q.Set("limit", itoa(search.Limit))
	}
	var orders []model.Order
	if err := c.doJSON(ctx, http.MethodGet, "/api/orders", q, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) UpdateOrder(ctx context.Context, id string, req UpdateOrderRequest) (*model.Order, error) {
	var order model.Order
	if err := c.doJSON(ctx, http.MethodPut, "/api/orders/"+url.PathEscape(id), nil, req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) (*model.Order, error) {
	var order model.Order
	body := map[string]model.OrderStatus{"status": status}
	if err := c.doJSON(ctx, http.MethodPatch, "/api/orders/"+url.PathEscape(id)+"/status", nil, body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) CancelOrder(ctx context.Context, id, reason string) (*model.Order, error) {
	var order model.Order
	body := map[string]string{"reason": reason}
	if err := c.doJSON(ctx, http.MethodPost, "/api/orders/"+url.PathEscape(id)+"/cancel", nil, body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}
