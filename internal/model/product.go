package model

import "time"

type Product struct {
	ProductID string    `gorm:"type:varchar(64);primaryKey" json:"productId"`
	SKU       string    `gorm:"type:varchar(64);index" json:"sku"`
	Name      string    `gorm:"type:varchar(256);not null" json:"name"`
	Category  string    `gorm:"type:varchar(128);index" json:"category"`
	Price     float64   `gorm:"not null;default:0" json:"price"`
	Stock     int       `gorm:"not null;default:0" json:"stock"`
	CachedAt  time.Time `json:"cachedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Product) TableName() string { return "products" }
