package repository

import (
	"context"

	"project-tracker/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	ListByTeam(ctx context.Context, teamID string, limit, offset int32) ([]*domain.AuditLog, error)
	Create(ctx context.Context, a *domain.AuditLog) error
}
