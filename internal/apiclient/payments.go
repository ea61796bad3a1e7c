package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

type PaymentRequest struct {
	OrderID   string  `json:"orderId"`
	Amount    float64 `json:"amount"`
	Method    string  `json:"method"`
	Reference string  `json:"reference,omitempty"`
}

type Payment struct {
	PaymentID string    `json:"paymentId"`
	OrderID   string    `json:"orderId"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// OfflinePayment is a payment the till captured while disconnected and
// reports after the fact.
type OfflinePayment struct {
	PaymentRequest
	CapturedAt time.Time `json:"capturedAt"`
}

func (c *Client) ProcessPayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	var payment Payment
	if err := c.doJSON(ctx, http.MethodPost, "/api/payments", nil, req, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *Client) RefundPayment(ctx context.Context, paymentID string, amount float64, reason string) (*Payment, error) {
	var payment Payment
	body := map[string]any{"amount": amount, "reason": reason}
	if err := c.doJSON(ctx, http.MethodPost, "/api/payments/"+url.PathEscape(paymentID)+"/refund", nil, body, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *Client) SubmitOfflinePayment(ctx context.Context, req OfflinePayment) (*Payment, error) {
	var payment Payment
	if err := c.doJSON(ctx, http.MethodPost, "/api/payments/offline", nil, req, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}
