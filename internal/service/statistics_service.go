package service

import (
	"context"
	"fmt"

	"stockroom/internal/allocator"
	"stockroom/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DashboardResponse is the aggregate view behind the dashboard screen.
type DashboardResponse struct {
	TotalProducts     int64              `json:"total_products"`
	TotalStockUnits   int64              `json:"total_stock_units"`
	LowStockProducts  int64              `json:"low_stock_products"`
	PendingHandovers  int64              `json:"pending_handovers"`
	ActiveHandovers   int64              `json:"active_handovers"`
	OutstandingUnits  int64              `json:"outstanding_units"`
	TopMovedProducts  []ProductActivity  `json:"top_moved_products"`
	SequenceAllocator allocator.Snapshot `json:"sequence_allocator"`
}

type ProductActivity struct {
	ProductID    uuid.UUID `json:"product_id"`
	ProductName  string    `json:"product_name"`
	ProductSKU   string    `json:"product_sku"`
	TotalHanded  int64     `json:"total_handed"`
	HandoverRuns int64     `json:"handover_runs"`
}

type StatisticsService interface {
	GetDashboard(ctx context.Context) (DashboardResponse, error)
}

type statisticsService struct {
	db    *gorm.DB
	alloc *allocator.Service
}

func NewStatisticsService(db *gorm.DB, alloc *allocator.Service) StatisticsService {
	return &statisticsService{db: db, alloc: alloc}
}

// GetDashboard runs the aggregate queries for the operations dashboard.
// Reads are not wrapped in a transaction: slightly stale counters are fine
// for a screen that refreshes on every websocket event anyway.
func (s *statisticsService) GetDashboard(ctx context.Context) (DashboardResponse, error) {
	var response DashboardResponse
	db := s.db.WithContext(ctx)

	if err := db.Model(&model.Product{}).Count(&response.TotalProducts).Error; err != nil {
		return response, fmt.Errorf("failed to count products: %w", err)
	}

	var stock struct {
		Units int64
	}
	if err := db.Model(&model.Product{}).
		Select("COALESCE(SUM(stock_quantity), 0) as units").
		Scan(&stock).Error; err != nil {
		return response, fmt.Errorf("failed to sum stock: %w", err)
	}
	response.TotalStockUnits = stock.Units

	if err := db.Model(&model.Product{}).
		Where("stock_quantity <= min_stock_level").
		Count(&response.LowStockProducts).Error; err != nil {
		return response, fmt.Errorf("failed to count low-stock products: %w", err)
	}

	if err := db.Model(&model.Handover{}).
		Where("status = ?", model.HandoverPending).
		Count(&response.PendingHandovers).Error; err != nil {
		return response, fmt.Errorf("failed to count pending handovers: %w", err)
	}

	if err := db.Model(&model.Handover{}).
		Where("status = ?", model.HandoverHandedOver).
		Count(&response.ActiveHandovers).Error; err != nil {
		return response, fmt.Errorf("failed to count active handovers: %w", err)
	}

	var outstanding struct {
		Units int64
	}
	if err := db.Model(&model.Handover{}).
		Select("COALESCE(SUM(quantity), 0) as units").
		Where("status = ?", model.HandoverHandedOver).
		Scan(&outstanding).Error; err != nil {
		return response, fmt.Errorf("failed to sum outstanding units: %w", err)
	}
	response.OutstandingUnits = outstanding.Units

	var top []ProductActivity
	if err := db.Table("handovers").
		Select("products.id as product_id, products.name as product_name, products.sku as product_sku, SUM(handovers.quantity) as total_handed, COUNT(handovers.id) as handover_runs").
		Joins("JOIN products ON products.id = handovers.product_id").
		Where("handovers.status IN ?", []model.HandoverStatus{model.HandoverHandedOver, model.HandoverReturned}).
		Group("products.id, products.name, products.sku").
		Order("total_handed DESC").
		Limit(5).
		Scan(&top).Error; err != nil {
		return response, fmt.Errorf("failed to rank products: %w", err)
	}
	response.TopMovedProducts = top

	snapshot, err := s.alloc.Peek(ctx)
	if err != nil {
		return response, fmt.Errorf("failed to read allocator state: %w", err)
	}
	response.SequenceAllocator = snapshot

	return response, nil
}
