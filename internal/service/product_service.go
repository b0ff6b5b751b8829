package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockroom/internal/allocator"
	"stockroom/internal/apperr"
	"stockroom/internal/model"
	"stockroom/internal/repository"
	"stockroom/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateProductRequest struct {
	SKU           string          `json:"sku" binding:"required"`
	Name          string          `json:"name" binding:"required"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	StockQuantity int             `json:"stock_quantity" binding:"gte=0"`
	MinStockLevel int             `json:"min_stock_level" binding:"gte=0"`
}

type UpdateProductRequest struct {
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	Category      *string          `json:"category"`
	UnitPrice     *decimal.Decimal `json:"unit_price"`
	MinStockLevel *int             `json:"min_stock_level"`
}

type AdjustStockRequest struct {
	Delta  int    `json:"delta" binding:"required"`
	Reason string `json:"reason"`
}

type ProductResponse struct {
	ID            string          `json:"id"`
	SequentialID  int64           `json:"sequential_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Category      string          `json:"category,omitempty"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	StockQuantity int             `json:"stock_quantity"`
	MinStockLevel int             `json:"min_stock_level"`
	LowStock      bool            `json:"low_stock"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

type MovementResponse struct {
	ID              string  `json:"id"`
	ProductID       string  `json:"product_id"`
	HandoverID      *string `json:"handover_id,omitempty"`
	MovementType    string  `json:"movement_type"`
	QuantityChanged int     `json:"quantity_changed"`
	StockAfter      int     `json:"stock_after"`
	CreatedAt       string  `json:"created_at"`
}

// --- Interface ---

// ProductService manages the catalog. Creation assigns the next sequential
// ID and deletion recycles it, both inside the same transaction as the
// product row, so an allocator failure never leaves a half-created product.
type ProductService interface {
	Create(ctx context.Context, actorID string, req CreateProductRequest) (ProductResponse, error)
	Update(ctx context.Context, actorID string, id string, req UpdateProductRequest) (ProductResponse, error)
	Delete(ctx context.Context, actorID string, id string) error
	GetByID(ctx context.Context, id string) (ProductResponse, error)
	List(ctx context.Context, page, limit int, search string) ([]ProductResponse, int64, error)
	AdjustStock(ctx context.Context, actorID string, id string, req AdjustStockRequest) (ProductResponse, error)
	Movements(ctx context.Context, id string, page, limit int) ([]MovementResponse, int64, error)
	Sequence(ctx context.Context) (allocator.Snapshot, error)
}

type productService struct {
	productRepo  repository.ProductRepository
	handoverRepo repository.HandoverRepository
	movementRepo repository.MovementRepository
	auditRepo    repository.AuditRepository
	allocator    *allocator.Service
	txManager    repository.TransactionManager
	hub          EventBroadcaster
	log          *logger.Logger
}

func NewProductService(
	productRepo repository.ProductRepository,
	handoverRepo repository.HandoverRepository,
	movementRepo repository.MovementRepository,
	auditRepo repository.AuditRepository,
	alloc *allocator.Service,
	txManager repository.TransactionManager,
	hub EventBroadcaster,
	log *logger.Logger,
) ProductService {
	return &productService{
		productRepo:  productRepo,
		handoverRepo: handoverRepo,
		movementRepo: movementRepo,
		auditRepo:    auditRepo,
		allocator:    alloc,
		txManager:    txManager,
		hub:          hub,
		log:          log,
	}
}

// --- Implementation ---

func (s *productService) Create(ctx context.Context, actorID string, req CreateProductRequest) (ProductResponse, error) {
	if strings.TrimSpace(req.SKU) == "" {
		return ProductResponse{}, apperr.Validation("sku is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return ProductResponse{}, apperr.Validation("name is required")
	}
	if req.StockQuantity < 0 || req.MinStockLevel < 0 {
		return ProductResponse{}, apperr.Validation("stock levels must not be negative")
	}

	product := model.Product{
		SKU:           req.SKU,
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		UnitPrice:     req.UnitPrice,
		StockQuantity: req.StockQuantity,
		MinStockLevel: req.MinStockLevel,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		seq, err := s.allocator.Acquire(txCtx)
		if err != nil {
			return fmt.Errorf("failed to acquire sequential id: %w", err)
		}
		product.SequentialID = seq

		if err := s.productRepo.Create(txCtx, &product); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Conflict("sku %q already exists", req.SKU)
			}
			return fmt.Errorf("failed to create product: %w", err)
		}

		if req.StockQuantity > 0 {
			movement := model.StockMovement{
				ProductID:       product.ID,
				MovementType:    model.MovementRestock,
				QuantityChanged: req.StockQuantity,
				StockAfter:      req.StockQuantity,
			}
			if err := s.movementRepo.Create(txCtx, &movement); err != nil {
				return fmt.Errorf("failed to record initial stock: %w", err)
			}
		}

		return s.audit(txCtx, parseActor(actorID), model.ActionCreateProduct, product.ID.String(), product.Name, map[string]interface{}{
			"sku":           req.SKU,
			"sequential_id": seq,
			"initial_stock": req.StockQuantity,
		})
	})
	if err != nil {
		return ProductResponse{}, err
	}

	s.broadcast("product.created", map[string]interface{}{
		"product_id":    product.ID.String(),
		"sequential_id": product.SequentialID,
	})

	return toProductResponse(&product), nil
}

func (s *productService) Update(ctx context.Context, actorID string, id string, req UpdateProductRequest) (ProductResponse, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return ProductResponse{}, apperr.Validation("invalid product id: %s", id)
	}

	var updated *model.Product
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.productRepo.FindByID(txCtx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("product not found: %s", id)
			}
			return fmt.Errorf("failed to load product: %w", err)
		}

		// SKU and SequentialID are immutable; stock changes only via
		// AdjustStock and handovers.
		if req.Name != nil {
			if strings.TrimSpace(*req.Name) == "" {
				return apperr.Validation("name must not be empty")
			}
			product.Name = *req.Name
		}
		if req.Description != nil {
			product.Description = *req.Description
		}
		if req.Category != nil {
			product.Category = *req.Category
		}
		if req.UnitPrice != nil {
			product.UnitPrice = *req.UnitPrice
		}
		if req.MinStockLevel != nil {
			if *req.MinStockLevel < 0 {
				return apperr.Validation("min stock level must not be negative")
			}
			product.MinStockLevel = *req.MinStockLevel
		}

		if err := s.productRepo.Update(txCtx, product); err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		updated = product

		return s.audit(txCtx, parseActor(actorID), model.ActionUpdateProduct, id, product.Name, nil)
	})
	if err != nil {
		return ProductResponse{}, err
	}

	s.broadcast("product.updated", map[string]interface{}{"product_id": id})

	return toProductResponse(updated), nil
}

// Delete removes a product and recycles its sequential ID. Products with
// open handovers (pending or handed_over) cannot be deleted: the handover
// rows reference them and the stock debt would become unaccountable.
func (s *productService) Delete(ctx context.Context, actorID string, id string) error {
	productID, err := uuid.Parse(id)
	if err != nil {
		return apperr.Validation("invalid product id: %s", id)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.productRepo.FindByID(txCtx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("product not found: %s", id)
			}
			return fmt.Errorf("failed to load product: %w", err)
		}

		open, err := s.handoverRepo.CountOpenByProduct(txCtx, productID)
		if err != nil {
			return fmt.Errorf("failed to count open handovers: %w", err)
		}
		if open > 0 {
			return apperr.InvalidState("product has %d open handover(s)", open)
		}

		rows, err := s.productRepo.Delete(txCtx, productID)
		if err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}
		if rows == 0 {
			return apperr.Conflict("product %s changed concurrently", id)
		}

		if err := s.allocator.Release(txCtx, product.SequentialID); err != nil {
			return fmt.Errorf("failed to recycle sequential id %d: %w", product.SequentialID, err)
		}

		return s.audit(txCtx, parseActor(actorID), model.ActionDeleteProduct, id, product.Name, map[string]interface{}{
			"sequential_id": product.SequentialID,
		})
	})
	if err != nil {
		return err
	}

	s.broadcast("product.deleted", map[string]interface{}{"product_id": id})

	return nil
}

func (s *productService) GetByID(ctx context.Context, id string) (ProductResponse, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return ProductResponse{}, apperr.Validation("invalid product id: %s", id)
	}

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProductResponse{}, apperr.NotFound("product not found: %s", id)
		}
		return ProductResponse{}, fmt.Errorf("failed to load product: %w", err)
	}

	return toProductResponse(product), nil
}

func (s *productService) List(ctx context.Context, page, limit int, search string) ([]ProductResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	products, total, err := s.productRepo.List(ctx, page, limit, search)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}

	result := make([]ProductResponse, 0, len(products))
	for i := range products {
		result = append(result, toProductResponse(&products[i]))
	}

	return result, total, nil
}

// AdjustStock applies a manual delta (positive restock, negative usage).
// The guard in the repository refuses to drive stock negative.
func (s *productService) AdjustStock(ctx context.Context, actorID string, id string, req AdjustStockRequest) (ProductResponse, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return ProductResponse{}, apperr.Validation("invalid product id: %s", id)
	}
	if req.Delta == 0 {
		return ProductResponse{}, apperr.Validation("delta must not be zero")
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		rows, err := s.productRepo.AdjustStock(txCtx, productID, req.Delta)
		if err != nil {
			return fmt.Errorf("failed to adjust stock: %w", err)
		}
		if rows == 0 {
			if _, err := s.productRepo.CurrentStock(txCtx, productID); errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("product not found: %s", id)
			}
			return apperr.InsufficientStock("adjustment of %d would drive stock negative", req.Delta)
		}

		stockAfter, err := s.productRepo.CurrentStock(txCtx, productID)
		if err != nil {
			return fmt.Errorf("failed to read stock after adjustment: %w", err)
		}

		movementType := model.MovementRestock
		if req.Delta < 0 {
			movementType = model.MovementUsage
		}
		movement := model.StockMovement{
			ProductID:       productID,
			MovementType:    movementType,
			QuantityChanged: req.Delta,
			StockAfter:      stockAfter,
		}
		if err := s.movementRepo.Create(txCtx, &movement); err != nil {
			return fmt.Errorf("failed to record stock movement: %w", err)
		}

		return s.audit(txCtx, parseActor(actorID), model.ActionAdjustStock, id, "", map[string]interface{}{
			"delta":       req.Delta,
			"reason":      req.Reason,
			"stock_after": stockAfter,
		})
	})
	if err != nil {
		return ProductResponse{}, err
	}

	s.broadcast("stock.changed", map[string]interface{}{"product_id": id})

	return s.GetByID(ctx, id)
}

func (s *productService) Movements(ctx context.Context, id string, page, limit int) ([]MovementResponse, int64, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return nil, 0, apperr.Validation("invalid product id: %s", id)
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	movements, total, err := s.movementRepo.ListByProduct(ctx, productID, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list stock movements: %w", err)
	}

	result := make([]MovementResponse, 0, len(movements))
	for i := range movements {
		result = append(result, toMovementResponse(&movements[i]))
	}

	return result, total, nil
}

func (s *productService) Sequence(ctx context.Context) (allocator.Snapshot, error) {
	return s.allocator.Peek(ctx)
}

func (s *productService) audit(ctx context.Context, actorID *uuid.UUID, action, entityID, entityName string, details map[string]interface{}) error {
	return auditInTx(ctx, s.auditRepo, actorID, action, entityID, entityName, details)
}

func (s *productService) broadcast(event string, data map[string]interface{}) {
	if s.hub != nil {
		s.hub.BroadcastEvent(event, data)
	}
}

func toProductResponse(p *model.Product) ProductResponse {
	return ProductResponse{
		ID:            p.ID.String(),
		SequentialID:  p.SequentialID,
		SKU:           p.SKU,
		Name:          p.Name,
		Description:   p.Description,
		Category:      p.Category,
		UnitPrice:     p.UnitPrice,
		StockQuantity: p.StockQuantity,
		MinStockLevel: p.MinStockLevel,
		LowStock:      p.StockQuantity <= p.MinStockLevel,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     p.UpdatedAt.Format(time.RFC3339),
	}
}

func toMovementResponse(m *model.StockMovement) MovementResponse {
	resp := MovementResponse{
		ID:              m.ID.String(),
		ProductID:       m.ProductID.String(),
		MovementType:    m.MovementType,
		QuantityChanged: m.QuantityChanged,
		StockAfter:      m.StockAfter,
		CreatedAt:       m.CreatedAt.Format(time.RFC3339),
	}
	if m.HandoverID != nil {
		s := m.HandoverID.String()
		resp.HandoverID = &s
	}
	return resp
}
