package remotesim

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"biliticket/possync/internal/apiclient"
	"biliticket/possync/internal/model"
	"biliticket/possync/pkg/response"
)

// replay answers c with the stored response for its idempotency key, if
// any. Caller holds s.mu.
func (s *Server) replay(c *gin.Context) bool {
	key := c.GetHeader(apiclient.HeaderIdempotencyKey)
	if key == "" {
		return false
	}
	prev, ok := s.replays[key]
	if ok {
		response.Success(c, prev)
	}
	return ok
}

func (s *Server) remember(c *gin.Context, data interface{}) {
	if key := c.GetHeader(apiclient.HeaderIdempotencyKey); key != "" {
		s.replays[key] = data
	}
}

func (s *Server) createOrder(c *gin.Context) {
	var req apiclient.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if len(req.Items) == 0 {
		response.BadRequest(c, "order has no items")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replay(c) {
		return
	}
	now := time.Now().UTC()
	subtotal, tax, total := model.Totals(req.Items, s.taxRate)
	order := &model.Order{
		OrderID:       s.nextID("ord"),
		CustomerID:    req.CustomerID,
		TerminalID:    req.TerminalID,
		Items:         req.Items,
		Subtotal:      subtotal,
		Tax:           tax,
		Total:         total,
		Status:        model.OrderStatusPending,
		PaymentMethod: req.PaymentMethod,
		Synced:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.orders[order.OrderID] = order
	copied := *order
	s.remember(c, copied)
	response.Success(c, copied)
}

func (s *Server) searchOrders(c *gin.Context) {
	status := model.OrderStatus(c.Query("status"))
	query := strings.ToLower(c.Query("q"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	s.mu.Lock()
	out := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if status != "" && o.Status != status {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(o.OrderID+" "+o.CustomerID), query) {
			continue
		}
		out = append(out, *o)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	response.Success(c, out)
}

func (s *Server) getOrder(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[c.Param("id")]
	if !ok {
		response.NotFound(c, "order not found")
		return
	}
	response.Success(c, *o)
}

func (s *Server) updateOrder(c *gin.Context) {
	var req apiclient.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[c.Param("id")]
	if !ok {
		response.NotFound(c, "order not found")
		return
	}
	if o.Status != model.OrderStatusPending {
		response.Conflict(c, "only pending orders can be edited")
		return
	}
	if req.CustomerID != "" {
		o.CustomerID = req.CustomerID
	}
	if req.PaymentMethod != "" {
		o.PaymentMethod = req.PaymentMethod
	}
	if len(req.Items) > 0 {
		o.Items = req.Items
		o.Subtotal, o.Tax, o.Total = model.Totals(req.Items, s.taxRate)
	}
	o.UpdatedAt = time.Now().UTC()
	response.Success(c, *o)
}

func (s *Server) updateOrderStatus(c *gin.Context) {
	var req struct {
		Status model.OrderStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s.setStatus(c, req.Status)
}

func (s *Server) cancelOrder(c *gin.Context) {
	s.setStatus(c, model.OrderStatusCancelled)
}

func (s *Server) setStatus(c *gin.Context, status model.OrderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[c.Param("id")]
	if !ok {
		response.NotFound(c, "order not found")
		return
	}
	if o.Status == model.OrderStatusCancelled || o.Status == model.OrderStatusRefunded {
		response.Conflict(c, "order is closed")
		return
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	response.Success(c, *o)
}

func (s *Server) processPayment(c *gin.Context) {
	var req apiclient.OfflinePayment
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replay(c) {
		return
	}
	o, ok := s.orders[req.OrderID]
	if !ok {
		response.NotFound(c, "order not found")
		return
	}
	if o.Status != model.OrderStatusPending {
		response.Conflict(c, "order is not awaiting payment")
		return
	}
	created := req.CapturedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	payment := &apiclient.Payment{
		PaymentID: s.nextID("pay"),
		OrderID:   o.OrderID,
		Amount:    req.Amount,
		Method:    req.Method,
		Status:    "captured",
		CreatedAt: created,
	}
	s.payments[payment.PaymentID] = payment
	o.Status = model.OrderStatusPaid
	o.UpdatedAt = time.Now().UTC()
	copied := *payment
	s.remember(c, copied)
	response.Success(c, copied)
}

func (s *Server) refundPayment(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[c.Param("id")]
	if !ok {
		response.NotFound(c, "payment not found")
		return
	}
	if p.Status == "refunded" {
		response.Error(c, http.StatusConflict, http.StatusConflict, "payment already refunded")
		return
	}
	p.Status = "refunded"
	if o, ok := s.orders[p.OrderID]; ok {
		o.Status = model.OrderStatusRefunded
		o.UpdatedAt = time.Now().UTC()
	}
	response.Success(c, *p)
}
