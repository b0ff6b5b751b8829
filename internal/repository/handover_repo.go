package repository

import (
	"context"

	"stockroom/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HandoverFilter narrows List results.
type HandoverFilter struct {
	Status     model.HandoverStatus
	ProductID  *uuid.UUID
	EmployeeID *uuid.UUID
	Page       int
	Limit      int
}

type HandoverRepository interface {
	Create(ctx context.Context, handover *model.Handover) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Handover, error)
	List(ctx context.Context, filter HandoverFilter) ([]model.Handover, int64, error)
	// TransitionStatus applies updates only if the row still holds the
	// expected status. Zero rows affected means another transition won.
	TransitionStatus(ctx context.Context, id uuid.UUID, expected model.HandoverStatus, updates map[string]interface{}) (int64, error)
	// DeleteIfStatus removes the row only if it still holds the expected
	// status, so deletion cannot race a concurrent transition.
	DeleteIfStatus(ctx context.Context, id uuid.UUID, expected model.HandoverStatus) (int64, error)
	CountOpenByProduct(ctx context.Context, productID uuid.UUID) (int64, error)
}

type handoverRepository struct {
	db *gorm.DB
}

func NewHandoverRepository(db *gorm.DB) HandoverRepository {
	return &handoverRepository{db: db}
}

func (r *handoverRepository) Create(ctx context.Context, handover *model.Handover) error {
	return GetDB(ctx, r.db).Create(handover).Error
}

func (r *handoverRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Handover, error) {
	var handover model.Handover
	if err := GetDB(ctx, r.db).
		Preload("Product").
		Preload("Employee").
		Preload("DecidedBy").
		First(&handover, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &handover, nil
}

func (r *handoverRepository) List(ctx context.Context, filter HandoverFilter) ([]model.Handover, int64, error) {
	var handovers []model.Handover
	var total int64

	base := GetDB(ctx, r.db).Model(&model.Handover{})
	if filter.Status != "" {
		base = base.Where("status = ?", filter.Status)
	}
	if filter.ProductID != nil {
		base = base.Where("product_id = ?", *filter.ProductID)
	}
	if filter.EmployeeID != nil {
		base = base.Where("employee_id = ?", *filter.EmployeeID)
	}

	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := base.
		Preload("Product").
		Preload("Employee").
		Preload("DecidedBy").
		Order("requested_at DESC").
		Offset(offset).
		Limit(filter.Limit).
		Find(&handovers).Error; err != nil {
		return nil, 0, err
	}

	return handovers, total, nil
}

func (r *handoverRepository) TransitionStatus(ctx context.Context, id uuid.UUID, expected model.HandoverStatus, updates map[string]interface{}) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.Handover{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *handoverRepository) DeleteIfStatus(ctx context.Context, id uuid.UUID, expected model.HandoverStatus) (int64, error) {
	res := GetDB(ctx, r.db).
		Where("id = ? AND status = ?", id, expected).
		Delete(&model.Handover{})
	return res.RowsAffected, res.Error
}

func (r *handoverRepository) CountOpenByProduct(ctx context.Context, productID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Handover{}).
		Where("product_id = ? AND status IN ?", productID,
			[]model.HandoverStatus{model.HandoverPending, model.HandoverHandedOver}).
		Count(&count).Error
	return count, err
}
