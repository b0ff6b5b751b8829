package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockroom/internal/apperr"
	"stockroom/internal/model"
	"stockroom/internal/repository"
	"stockroom/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventBroadcaster pushes live events to connected clients. Nil-safe from
// the service's point of view so tests can run without a hub.
type EventBroadcaster interface {
	BroadcastEvent(event string, data map[string]interface{})
}

// --- DTOs ---

type RequestHandoverRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
	Reason    string `json:"reason"`
}

type DirectHandoverRequest struct {
	ProductID  string `json:"product_id" binding:"required"`
	EmployeeID string `json:"employee_id" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required,gt=0"`
	Notes      string `json:"notes"`
}

type ApproveHandoverRequest struct {
	Notes string `json:"notes"`
}

type RejectHandoverRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ReturnHandoverRequest struct {
	Quantity int    `json:"quantity" binding:"required,gt=0"`
	Notes    string `json:"notes"`
}

type HandoverListFilter struct {
	Status     string
	ProductID  string
	EmployeeID string
	Page       int
	Limit      int
}

type HandoverResponse struct {
	ID              string  `json:"id"`
	ProductID       string  `json:"product_id"`
	ProductName     string  `json:"product_name"`
	SequentialID    int64   `json:"product_sequential_id"`
	EmployeeID      string  `json:"employee_id"`
	EmployeeName    string  `json:"employee_name"`
	Quantity        int     `json:"quantity"`
	Status          string  `json:"status"`
	RequestReason   string  `json:"request_reason,omitempty"`
	ApprovalNotes   string  `json:"approval_notes,omitempty"`
	RejectionReason string  `json:"rejection_reason,omitempty"`
	ReturnNotes     string  `json:"return_notes,omitempty"`
	DecidedBy       *string `json:"decided_by,omitempty"`
	DeciderName     string  `json:"decider_name,omitempty"`
	RequestedAt     string  `json:"requested_at"`
	DecisionAt      *string `json:"decision_at,omitempty"`
	HandedOverAt    *string `json:"handed_over_at,omitempty"`
	ReturnedAt      *string `json:"returned_at,omitempty"`
}

// --- Interface ---

// HandoverService owns the handover lifecycle. Every transition mutates the
// handover record and the linked product's stock inside one transaction, so
// the conservation property (each debited unit is credited back exactly
// once, by return or by delete-while-handed-over) holds by construction.
type HandoverService interface {
	Request(ctx context.Context, employeeID string, req RequestHandoverRequest) (HandoverResponse, error)
	DirectHandover(ctx context.Context, managerID string, req DirectHandoverRequest) (HandoverResponse, error)
	Approve(ctx context.Context, managerID string, id string, req ApproveHandoverRequest) (HandoverResponse, error)
	Reject(ctx context.Context, managerID string, id string, req RejectHandoverRequest) (HandoverResponse, error)
	Return(ctx context.Context, callerID string, callerCanManage bool, id string, req ReturnHandoverRequest) (HandoverResponse, error)
	Delete(ctx context.Context, managerID string, id string) error
	GetByID(ctx context.Context, id string) (HandoverResponse, error)
	List(ctx context.Context, filter HandoverListFilter) ([]HandoverResponse, int64, error)
}

type handoverService struct {
	handoverRepo repository.HandoverRepository
	productRepo  repository.ProductRepository
	movementRepo repository.MovementRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	hub          EventBroadcaster
	log          *logger.Logger
}

func NewHandoverService(
	handoverRepo repository.HandoverRepository,
	productRepo repository.ProductRepository,
	movementRepo repository.MovementRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	hub EventBroadcaster,
	log *logger.Logger,
) HandoverService {
	return &handoverService{
		handoverRepo: handoverRepo,
		productRepo:  productRepo,
		movementRepo: movementRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
		hub:          hub,
		log:          log,
	}
}

// --- Implementation ---

func (s *handoverService) Request(ctx context.Context, employeeID string, req RequestHandoverRequest) (HandoverResponse, error) {
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return HandoverResponse{}, apperr.Validation("invalid product id: %s", req.ProductID)
	}
	empID, err := uuid.Parse(employeeID)
	if err != nil {
		return HandoverResponse{}, apperr.Validation("invalid employee id: %s", employeeID)
	}
	if req.Quantity <= 0 {
		return HandoverResponse{}, apperr.Validation("quantity must be positive")
	}

	handover := model.Handover{
		ProductID:     productID,
		EmployeeID:    empID,
		Quantity:      req.Quantity,
		Status:        model.HandoverPending,
		RequestReason: req.Reason,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.productRepo.FindByID(txCtx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("product not found: %s", req.ProductID)
			}
			return fmt.Errorf("failed to load product: %w", err)
		}

		if err := s.handoverRepo.Create(txCtx, &handover); err != nil {
			return fmt.Errorf("failed to create handover request: %w", err)
		}

		return s.audit(txCtx, &empID, model.ActionRequestHandover, handover.ID.String(), product.Name, map[string]interface{}{
			"product_id": req.ProductID,
			"quantity":   req.Quantity,
			"reason":     req.Reason,
		})
	})
	if err != nil {
		return HandoverResponse{}, err
	}

	s.broadcast("handover.requested", map[string]interface{}{
		"handover_id": handover.ID.String(),
		"product_id":  req.ProductID,
		"quantity":    req.Quantity,
	})

	return s.GetByID(ctx, handover.ID.String())
}

func (s *handoverService) DirectHandover(ctx context.Context, managerID string, req DirectHandoverRequest) (HandoverResponse, error) {
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return HandoverResponse{}, apperr.Validation("invalid product id: %s", req.ProductID)
	}
	empID, err := uuid.Parse(req.EmployeeID)
	if err != nil {
		return HandoverResponse{}, apperr.Validation("invalid employee id: %s", req.EmployeeID)
	}
	if req.Quantity <= 0 {
		return HandoverResponse{}, apperr.Validation("quantity must be positive")
	}
	mgrID := parseActor(managerID)

	now := time.Now()
	handover := model.Handover{
		ProductID:     productID,
		EmployeeID:    empID,
		Quantity:      req.Quantity,
		Status:        model.HandoverHandedOver,
		ApprovalNotes: req.Notes,
		DecidedByID:   mgrID,
		DecisionAt:    &now,
		HandedOverAt:  &now,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.productRepo.FindByID(txCtx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("product not found: %s", req.ProductID)
			}
			return fmt.Errorf("failed to load product: %w", err)
		}

		if err := s.handoverRepo.Create(txCtx, &handover); err != nil {
			return fmt.Errorf("failed to create handover: %w", err)
		}

		if err := s.debitStock(txCtx, productID, req.Quantity, handover.ID); err != nil {
			return err
		}

		return s.audit(txCtx, mgrID, model.ActionDirectHandover, handover.ID.String(), product.Name, map[string]interface{}{
			"product_id":  req.ProductID,
			"employee_id": req.EmployeeID,
			"quantity":    req.Quantity,
		})
	})
	if err != nil {
		return HandoverResponse{}, err
	}

	s.broadcast("handover.handed_over", map[string]interface{}{
		"handover_id": handover.ID.String(),
		"product_id":  req.ProductID,
		"quantity":    req.Quantity,
	})

	return s.GetByID(ctx, handover.ID.String())
}

func (s *handoverService) Approve(ctx context.Context, managerID string, id string, req ApproveHandoverRequest) (HandoverResponse, error) {
	handoverID, err := uuid.Parse(id)
	if err != nil {
		return HandoverResponse{}, apperr.Validation("invalid handover id: %s", id)
	}
	mgrID := parseActor(managerID)

	err = s.runTransition(ctx, func(txCtx context.Context) error {
		handover, err := s.loadHandover(txCtx, handoverID)
		if err != nil {
			return err
		}
		if handover.Status != model.HandoverPending {
			return apperr.InvalidState("cannot approve handover in status %q", handover.Status)
		}

		now := time.Now()
		rows, err := s.handoverRepo.TransitionStatus(txCtx, handoverID, model.HandoverPending, map[string]interface{}{
			"status":         model.HandoverHandedOver,
			"decided_by_id":  mgrID,
			"decision_at":    now,
			"handed_over_at": now,
			"approval_notes": req.Notes,
		})
		if err != nil {
			return fmt.Errorf("failed to update handover: %w", err)
		}
		if rows == 0 {
			return apperr.Conflict("handover %s changed concurrently", id)
		}

		if err := s.debitStock(txCtx, handover.ProductID, handover.Quantity, handoverID); err != nil {
			return err
		}

		return s.audit(txCtx, mgrID, model.ActionApproveHandover, id, productName(handover), map[string]interface{}{
			"quantity": handover.Quantity,
			"notes":    req.Notes,
		})
	})
	if err != nil {
		return HandoverResponse{}, err
	}

	s.broadcast("handover.approved", map[string]interface{}{"handover_id": id})

	return s.GetByID(ctx, id)
}

func (s *handoverService) Reject(ctx context.Context, managerID string, id string, req RejectHandoverRequest) (HandoverResponse, error) {
	handoverID, err := uuid.Parse(id)
	if err != nil {
		return HandoverResponse{}, apperr.Validation("invalid handover id: %s", id)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return HandoverResponse{}, apperr.Validation("rejection reason is required")
	}
	mgrID := parseActor(managerID)

	err = s.runTransition(ctx, func(txCtx context.Context) error {
		handover, err := s.loadHandover(txCtx, handoverID)
		if err != nil {
			return err
		}
		if handover.Status != model.HandoverPending {
			return apperr.InvalidState("cannot reject handover in status %q", handover.Status)
		}

		now := time.Now()
		rows, err := s.handoverRepo.TransitionStatus(txCtx, handoverID, model.HandoverPending, map[string]interface{}{
			"status":           model.HandoverRejected,
			"decided_by_id":    mgrID,
			"decision_at":      now,
			"rejection_reason": req.Reason,
		})
		if err != nil {
			return fmt.Errorf("failed to update handover: %w", err)
		}
		if rows == 0 {
			return apperr.Conflict("handover %s changed concurrently", id)
		}

		// Rejection never touches stock: nothing was debited while pending.
		return s.audit(txCtx, mgrID, model.ActionRejectHandover, id, productName(handover), map[string]interface{}{
			"reason": req.Reason,
		})
	})
	if err != nil {
		return HandoverResponse{}, err
	}

	s.broadcast("handover.rejected", map[string]interface{}{"handover_id": id})

	return s.GetByID(ctx, id)
}

func (s *handoverService) Return(ctx context.Context, callerID string, callerCanManage bool, id string, req ReturnHandoverRequest) (HandoverResponse, error) {
	handoverID, err := uuid.Parse(id)
	if err != nil {
		return HandoverResponse{}, apperr.Validation("invalid handover id: %s", id)
	}
	actorID := parseActor(callerID)

	err = s.runTransition(ctx, func(txCtx context.Context) error {
		handover, err := s.loadHandover(txCtx, handoverID)
		if err != nil {
			return err
		}
		if !callerCanManage && (actorID == nil || handover.EmployeeID != *actorID) {
			return apperr.Validation("handover belongs to another employee")
		}
		if handover.Status != model.HandoverHandedOver {
			return apperr.InvalidState("cannot return handover in status %q", handover.Status)
		}
		// Partial returns are not supported: the record flips to returned as
		// a whole, so the credited quantity must match the debited one.
		if req.Quantity != handover.Quantity {
			return apperr.Validation("must return exactly %d units, got %d", handover.Quantity, req.Quantity)
		}

		now := time.Now()
		rows, err := s.handoverRepo.TransitionStatus(txCtx, handoverID, model.HandoverHandedOver, map[string]interface{}{
			"status":       model.HandoverReturned,
			"returned_at":  now,
			"return_notes": req.Notes,
		})
		if err != nil {
			return fmt.Errorf("failed to update handover: %w", err)
		}
		if rows == 0 {
			return apperr.Conflict("handover %s changed concurrently", id)
		}

		if err := s.creditStock(txCtx, handover.ProductID, handover.Quantity, handoverID, model.MovementReturnIn); err != nil {
			return err
		}

		return s.audit(txCtx, actorID, model.ActionReturnHandover, id, productName(handover), map[string]interface{}{
			"quantity": handover.Quantity,
			"notes":    req.Notes,
		})
	})
	if err != nil {
		return HandoverResponse{}, err
	}

	s.broadcast("handover.returned", map[string]interface{}{"handover_id": id})

	return s.GetByID(ctx, id)
}

func (s *handoverService) Delete(ctx context.Context, managerID string, id string) error {
	handoverID, err := uuid.Parse(id)
	if err != nil {
		return apperr.Validation("invalid handover id: %s", id)
	}
	mgrID := parseActor(managerID)

	err = s.runTransition(ctx, func(txCtx context.Context) error {
		handover, err := s.loadHandover(txCtx, handoverID)
		if err != nil {
			return err
		}

		// The delete is conditioned on the status just observed, so a
		// concurrent return cannot slip in between and double-credit stock.
		rows, err := s.handoverRepo.DeleteIfStatus(txCtx, handoverID, handover.Status)
		if err != nil {
			return fmt.Errorf("failed to delete handover: %w", err)
		}
		if rows == 0 {
			return apperr.Conflict("handover %s changed concurrently", id)
		}

		if handover.Status == model.HandoverHandedOver {
			// Deleting an outstanding handover must not lose the stock debt.
			if err := s.creditStock(txCtx, handover.ProductID, handover.Quantity, handoverID, model.MovementHandoverReversal); err != nil {
				return err
			}
		}

		return s.audit(txCtx, mgrID, model.ActionDeleteHandover, id, productName(handover), map[string]interface{}{
			"status_at_delete": string(handover.Status),
			"quantity":         handover.Quantity,
		})
	})
	if err != nil {
		return err
	}

	s.broadcast("handover.deleted", map[string]interface{}{"handover_id": id})

	return nil
}

func (s *handoverService) GetByID(ctx context.Context, id string) (HandoverResponse, error) {
	handoverID, err := uuid.Parse(id)
	if err != nil {
		return HandoverResponse{}, apperr.Validation("invalid handover id: %s", id)
	}

	handover, err := s.loadHandover(ctx, handoverID)
	if err != nil {
		return HandoverResponse{}, err
	}

	return toHandoverResponse(handover), nil
}

func (s *handoverService) List(ctx context.Context, filter HandoverListFilter) ([]HandoverResponse, int64, error) {
	repoFilter := repository.HandoverFilter{Page: filter.Page, Limit: filter.Limit}
	if repoFilter.Page <= 0 {
		repoFilter.Page = 1
	}
	if repoFilter.Limit <= 0 {
		repoFilter.Limit = 20
	}

	if filter.Status != "" {
		status := model.HandoverStatus(filter.Status)
		if !status.Valid() {
			return nil, 0, apperr.Validation("unknown status: %s", filter.Status)
		}
		repoFilter.Status = status
	}
	if filter.ProductID != "" {
		pid, err := uuid.Parse(filter.ProductID)
		if err != nil {
			return nil, 0, apperr.Validation("invalid product id: %s", filter.ProductID)
		}
		repoFilter.ProductID = &pid
	}
	if filter.EmployeeID != "" {
		eid, err := uuid.Parse(filter.EmployeeID)
		if err != nil {
			return nil, 0, apperr.Validation("invalid employee id: %s", filter.EmployeeID)
		}
		repoFilter.EmployeeID = &eid
	}

	handovers, total, err := s.handoverRepo.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list handovers: %w", err)
	}

	result := make([]HandoverResponse, 0, len(handovers))
	for i := range handovers {
		result = append(result, toHandoverResponse(&handovers[i]))
	}

	return result, total, nil
}

// --- Internals ---

// runTransition executes one transition transaction, retrying exactly once
// when the conditional update lost a race. The closure re-reads all state,
// so the retry re-evaluates every precondition from scratch.
func (s *handoverService) runTransition(ctx context.Context, fn func(txCtx context.Context) error) error {
	err := s.txManager.RunInTx(ctx, fn)
	if apperr.IsKind(err, apperr.KindConflict) {
		s.log.Debug().Msg("handover transition lost a race, retrying once")
		err = s.txManager.RunInTx(ctx, fn)
	}
	return err
}

func (s *handoverService) loadHandover(ctx context.Context, id uuid.UUID) (*model.Handover, error) {
	handover, err := s.handoverRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("handover not found: %s", id)
		}
		return nil, fmt.Errorf("failed to load handover: %w", err)
	}
	return handover, nil
}

// debitStock atomically subtracts quantity from the product's stock and
// appends a movement row. Zero rows affected means either the product is
// gone or the stock guard failed.
func (s *handoverService) debitStock(ctx context.Context, productID uuid.UUID, quantity int, handoverID uuid.UUID) error {
	rows, err := s.productRepo.AdjustStock(ctx, productID, -quantity)
	if err != nil {
		return fmt.Errorf("failed to debit stock: %w", err)
	}
	if rows == 0 {
		if _, err := s.productRepo.CurrentStock(ctx, productID); errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("product not found: %s", productID)
		}
		return apperr.InsufficientStock("insufficient stock for product %s (requested %d)", productID, quantity)
	}

	return s.recordMovement(ctx, productID, handoverID, model.MovementHandoverOut, -quantity)
}

func (s *handoverService) creditStock(ctx context.Context, productID uuid.UUID, quantity int, handoverID uuid.UUID, movementType string) error {
	rows, err := s.productRepo.AdjustStock(ctx, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to credit stock: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("product not found: %s", productID)
	}

	return s.recordMovement(ctx, productID, handoverID, movementType, quantity)
}

func (s *handoverService) recordMovement(ctx context.Context, productID, handoverID uuid.UUID, movementType string, delta int) error {
	stockAfter, err := s.productRepo.CurrentStock(ctx, productID)
	if err != nil {
		return fmt.Errorf("failed to read stock after adjustment: %w", err)
	}

	hid := handoverID
	movement := model.StockMovement{
		ProductID:       productID,
		HandoverID:      &hid,
		MovementType:    movementType,
		QuantityChanged: delta,
		StockAfter:      stockAfter,
	}
	if err := s.movementRepo.Create(ctx, &movement); err != nil {
		return fmt.Errorf("failed to record stock movement: %w", err)
	}
	return nil
}

func (s *handoverService) audit(ctx context.Context, actorID *uuid.UUID, action, entityID, entityName string, details map[string]interface{}) error {
	return auditInTx(ctx, s.auditRepo, actorID, action, entityID, entityName, details)
}

func (s *handoverService) broadcast(event string, data map[string]interface{}) {
	if s.hub != nil {
		s.hub.BroadcastEvent(event, data)
	}
}

func parseActor(id string) *uuid.UUID {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil
	}
	return &parsed
}

func productName(h *model.Handover) string {
	if h.Product != nil {
		return h.Product.Name
	}
	return ""
}

func toHandoverResponse(h *model.Handover) HandoverResponse {
	resp := HandoverResponse{
		ID:              h.ID.String(),
		ProductID:       h.ProductID.String(),
		EmployeeID:      h.EmployeeID.String(),
		Quantity:        h.Quantity,
		Status:          string(h.Status),
		RequestReason:   h.RequestReason,
		ApprovalNotes:   h.ApprovalNotes,
		RejectionReason: h.RejectionReason,
		ReturnNotes:     h.ReturnNotes,
		RequestedAt:     h.RequestedAt.Format(time.RFC3339),
	}

	if h.Product != nil {
		resp.ProductName = h.Product.Name
		resp.SequentialID = h.Product.SequentialID
	}
	if h.Employee != nil {
		resp.EmployeeName = h.Employee.Username
	}
	if h.DecidedByID != nil {
		s := h.DecidedByID.String()
		resp.DecidedBy = &s
	}
	if h.DecidedBy != nil {
		resp.DeciderName = h.DecidedBy.Username
	}
	if h.DecisionAt != nil {
		s := h.DecisionAt.Format(time.RFC3339)
		resp.DecisionAt = &s
	}
	if h.HandedOverAt != nil {
		s := h.HandedOverAt.Format(time.RFC3339)
		resp.HandedOverAt = &s
	}
	if h.ReturnedAt != nil {
		s := h.ReturnedAt.Format(time.RFC3339)
		resp.ReturnedAt = &s
	}

	return resp
}
