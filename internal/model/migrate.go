package model

import "gorm.io/gorm"

// AutoMigrate runs GORM auto-migration for every locally persisted model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&StoredValue{},
		&Product{},
		&Order{},
		&QueueItem{},
	)
}
