package model

import "time"

// StoredValue is a durable-tier key/value row. Rows past ExpiresAt are
// treated as absent and purged on read.
type StoredValue struct {
	Key       string    `gorm:"type:varchar(255);primaryKey" json:"key"`
	Value     []byte    `gorm:"not null" json:"value"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (StoredValue) TableName() string { return "stored_values" }

func (v StoredValue) Expired(now time.Time) bool {
	return !v.ExpiresAt.After(now)
}
