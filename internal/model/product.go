package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents an item in the inventory.
//
// SequentialID is the small human-facing number assigned by the allocator;
// it is unique across live products and may be a recycled value. Products
// are hard-deleted so the unique index frees the slot for recycling.
type Product struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SequentialID  int64           `gorm:"uniqueIndex;not null" json:"sequential_id"`
	SKU           string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"sku"`
	Name          string          `gorm:"type:varchar(255);not null" json:"name"`
	Description   string          `gorm:"type:text" json:"description"`
	Category      string          `gorm:"type:varchar(100);index" json:"category"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	StockQuantity int             `gorm:"not null;default:0;check:stock_quantity >= 0" json:"stock_quantity"`
	MinStockLevel int             `gorm:"not null;default:0" json:"min_stock_level"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Stock movement types
const (
	MovementRestock          = "RESTOCK"
	MovementUsage            = "USAGE"
	MovementHandoverOut      = "HANDOVER_OUT"
	MovementReturnIn         = "RETURN_IN"
	MovementHandoverReversal = "HANDOVER_REVERSAL"
)

// StockMovement records every stock change strictly, with the resulting
// balance, so inventory history can be replayed per product.
type StockMovement struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"product_id"`
	Product         Product    `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"-"`
	HandoverID      *uuid.UUID `gorm:"type:uuid;index" json:"handover_id"` // Nullable for manual adjustments
	MovementType    string     `gorm:"type:varchar(30);not null" json:"movement_type"`
	QuantityChanged int        `gorm:"not null" json:"quantity_changed"`
	StockAfter      int        `gorm:"not null" json:"stock_after"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (m *StockMovement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
