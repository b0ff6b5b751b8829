// Package testutil bootstraps an in-memory database mirroring the production
// schema so service and repository tests run hermetically.
package testutil

import (
	"fmt"
	"testing"

	"stockroom/internal/database"
	"stockroom/internal/model"

	"github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens an isolated in-memory sqlite database with the full schema
// applied. A single connection keeps the database alive for the test's
// lifetime and serializes access the way a transaction-per-request server
// would.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access underlying connection: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}

	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// SeedUser inserts a user with a bcrypt-hashed password of "password123".
func SeedUser(t *testing.T, db *gorm.DB, username, role string) *model.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &model.User{
		Username: username,
		Email:    fmt.Sprintf("%s@example.com", username),
		Password: string(hash),
		Role:     role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to seed user %q: %v", username, err)
	}

	return user
}

// SeedProduct inserts a product row directly, bypassing the allocator, for
// tests that exercise the handover flow rather than ID assignment.
func SeedProduct(t *testing.T, db *gorm.DB, sequentialID int64, sku string, stock int) *model.Product {
	t.Helper()

	product := &model.Product{
		SequentialID:  sequentialID,
		SKU:           sku,
		Name:          "Product " + sku,
		StockQuantity: stock,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("failed to seed product %q: %v", sku, err)
	}

	return product
}
