package handler

import (
	"github.com/gin-gonic/gin"

	"biliticket/possync/internal/model"
	"biliticket/possync/internal/repository"
	"biliticket/possync/internal/service"
	"biliticket/possync/pkg/response"
)

type OrderHandler struct {
	orders *service.OrderService
}

func NewOrderHandler(orders *service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type PaymentRequest struct {
	Amount    float64 `json:"amount"`
	Method    string  `json:"method" binding:"required"`
	Reference string  `json:"reference"`
}

type StatusRequest struct {
	Status model.OrderStatus `json:"status" binding:"required"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

// Create answers 200 for orders the server accepted and 202 for orders
// taken offline.
func (h *OrderHandler) Create(c *gin.Context) {
	var req service.CreateOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	order, err := h.orders.CreateOrder(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	if order.IsOfflineOrder && !order.Synced {
		response.Accepted(c, order)
		return
	}
	response.Success(c, order)
}

func (h *OrderHandler) List(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), repository.OrderFilter{
		Status: model.OrderStatus(c.Query("status")),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, orders)
}

func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, order)
}

func (h *OrderHandler) Refresh(c *gin.Context) {
	n, err := h.orders.RefreshOrders(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"orders": n})
}

func (h *OrderHandler) Pay(c *gin.Context) {
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.orders.ProcessPayment(c.Request.Context(), service.PaymentInput{
		OrderID:   c.Param("id"),
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: req.Reference,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Queued {
		response.Accepted(c, res)
		return
	}
	response.Success(c, res)
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	order, err := h.orders.UpdateOrderStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, order)
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	var req CancelRequest
	// the body is optional
	_ = c.ShouldBindJSON(&req)
	order, err := h.orders.CancelOrder(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, order)
}
