// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"biliticket/possync/internal/model"
	"biliticket/possync/internal/repository"
)

// NewDB opens a migrated SQLite database in a per-test temp dir.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "possync.db")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?_busy_timeout=5000", path)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// NewStore returns a tiered persistent store over an in-memory fast tier
// and the given database.
func NewStore(t testing.TB, db *gorm.DB) repository.PersistentStore {
	t.Helper()
	return repository.NewTieredStore(
		repository.NewMemoryStateStore(0),
		repository.NewPGDurableStore(db),
		repository.TieredOptions{},
	)
}
