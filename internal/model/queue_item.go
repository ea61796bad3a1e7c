package model

import "time"

type ActionKind string

const (
	ActionCreateOrder       ActionKind = "createOrder"
	ActionProcessPayment    ActionKind = "processPayment"
	ActionUpdateOrderStatus ActionKind = "updateOrderStatus"
	ActionCancelOrder       ActionKind = "cancelOrder"
)

type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusPending, QueueStatusProcessing, QueueStatusCompleted, QueueStatusFailed:
		return true
	}
	return false
}

// QueueItem is one offline action awaiting replay. Rows are never deleted
// automatically; failed rows stay for inspection and manual retry.
type QueueItem struct {
	ID             uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	Type           ActionKind  `gorm:"type:varchar(32);not null" json:"type"`
	Payload        JSONPayload `gorm:"type:text" json:"payload"`
	Status         QueueStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	IdempotencyKey string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"idempotencyKey"`
	// OrderRef is the cached order id the action targets.
	OrderRef       string      `gorm:"type:varchar(64);index" json:"orderRef,omitempty"`
	Attempts       int         `gorm:"not null;default:0" json:"attempts"`
	LastError      string      `gorm:"type:text" json:"lastError,omitempty"`
	EnqueuedAt     time.Time   `gorm:"not null" json:"enqueuedAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

func (QueueItem) TableName() string { return "queue_items" }
