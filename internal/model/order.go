package model

import (
	"math"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// OfflineIDPrefix marks identifiers minted on the till while disconnected.
const OfflineIDPrefix = "offline_"

func IsOfflineID(id string) bool {
	return strings.HasPrefix(id, OfflineIDPrefix)
}

type OrderItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"qty"`
	Price     float64 `json:"price"`
}

func (i OrderItem) LineTotal() float64 {
	return RoundMoney(float64(i.Quantity) * i.Price)
}

// Order is the cached order row. OrderID is the local key; for orders taken
// offline it is the offline id and stays the key after the server assigns
// ServerOrderID.
type Order struct {
	OrderID        string      `gorm:"type:varchar(64);primaryKey" json:"orderId"`
	ServerOrderID  string      `gorm:"type:varchar(64);index" json:"serverOrderId,omitempty"`
	CustomerID     string      `gorm:"type:varchar(64)" json:"customerId,omitempty"`
	TerminalID     string      `gorm:"type:varchar(64)" json:"terminalId,omitempty"`
	Items          OrderItems  `gorm:"type:text" json:"items"`
	Subtotal       float64     `json:"subtotal"`
	Tax            float64     `json:"tax"`
	Total          float64     `json:"total"`
	Status         OrderStatus `gorm:"type:varchar(32);index" json:"status"`
	PaymentMethod  string      `gorm:"type:varchar(32)" json:"paymentMethod,omitempty"`
	IsOfflineOrder bool        `gorm:"not null;default:false" json:"isOfflineOrder"`
	Synced         bool        `gorm:"not null;default:false" json:"synced"`
	SyncedAt       *time.Time  `json:"syncedAt,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

func (Order) TableName() string { return "orders" }

// RemoteID is the identifier the server knows this order by.
func (o Order) RemoteID() string {
	if o.ServerOrderID != "" {
		return o.ServerOrderID
	}
	return o.OrderID
}

// Totals computes subtotal, tax and total for items at the given tax rate.
func Totals(items []OrderItem, taxRate float64) (subtotal, tax, total float64) {
	for _, item := range items {
		subtotal += item.LineTotal()
	}
	subtotal = RoundMoney(subtotal)
	tax = RoundMoney(subtotal * taxRate)
	return subtotal, tax, RoundMoney(subtotal + tax)
}

func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
