package service

import (
	"time"

	"biliticket/possync/internal/model"
)

// Queue payloads, one per action kind. Order ids may be offline ids; the
// sync engine resolves them to server ids at replay time.

// orderScoped payloads name the cached order they act on, so the queue can
// tell whether an order still has actions waiting.
type orderScoped interface {
	orderRef() string
}

func (p CreateOrderPayload) orderRef() string { return p.OrderID }
func (p PaymentPayload) orderRef() string     { return p.OrderID }
func (p OrderStatusPayload) orderRef() string { return p.OrderID }
func (p CancelOrderPayload) orderRef() string { return p.OrderID }

type CreateOrderPayload struct {
	OrderID       string            `json:"orderId"`
	CustomerID    string            `json:"customerId,omitempty"`
	TerminalID    string            `json:"terminalId,omitempty"`
	Items         []model.OrderItem `json:"items"`
	PaymentMethod string            `json:"paymentMethod,omitempty"`
}

type PaymentPayload struct {
	OrderID    string    `json:"orderId"`
	Amount     float64   `json:"amount"`
	Method     string    `json:"method"`
	Reference  string    `json:"reference,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
}

type OrderStatusPayload struct {
	OrderID string            `json:"orderId"`
	Status  model.OrderStatus `json:"status"`
}

type CancelOrderPayload struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason,omitempty"`
}
