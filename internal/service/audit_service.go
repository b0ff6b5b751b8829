package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stockroom/internal/model"
	"stockroom/internal/repository"

	"github.com/google/uuid"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id,omitempty"`
	Username   string `json:"username,omitempty"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name,omitempty"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

type AuditService interface {
	List(ctx context.Context, page, limit int) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	auditRepo repository.AuditRepository
}

func NewAuditService(auditRepo repository.AuditRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

func (s *auditService) List(ctx context.Context, page, limit int) ([]AuditLogResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}

	logs, total, err := s.auditRepo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}

	result := make([]AuditLogResponse, 0, len(logs))
	for i := range logs {
		entry := AuditLogResponse{
			ID:         logs[i].ID.String(),
			Action:     logs[i].Action,
			EntityID:   logs[i].EntityID,
			EntityName: logs[i].EntityName,
			Details:    logs[i].Details,
			CreatedAt:  logs[i].CreatedAt.Format(time.RFC3339),
		}
		if logs[i].UserID != nil {
			entry.UserID = logs[i].UserID.String()
		}
		if logs[i].User != nil {
			entry.Username = logs[i].User.Username
		}
		result = append(result, entry)
	}

	return result, total, nil
}

// auditInTx appends an audit row as part of the caller's transaction, so an
// action and its trail commit or roll back together.
func auditInTx(ctx context.Context, repo repository.AuditRepository, actorID *uuid.UUID, action, entityID, entityName string, details map[string]interface{}) error {
	payload := "{}"
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		payload = string(raw)
	}

	entry := model.AuditLog{
		UserID:     actorID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    payload,
	}
	if err := repo.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
