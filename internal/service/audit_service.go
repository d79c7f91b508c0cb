package service

import (
	"context"

	"storefront/internal/repository"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, action, entityID string, page, limit int) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// GetAuditLogs returns newest-first audit rows, optionally narrowed to one action or entity.
func (s *auditService) GetAuditLogs(ctx context.Context, action, entityID string, page, limit int) ([]AuditLogResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	logs, total, err := s.repo.List(ctx, action, entityID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		name := "System"
		userID := ""
		if l.User != nil {
			name = l.User.Name
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			UserName:   name,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	return res, total, nil
}
