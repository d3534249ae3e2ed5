package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medscribe/medscribe-backend/internal/platform/logger"
	"github.com/medscribe/medscribe-backend/internal/repos"
	"github.com/medscribe/medscribe-backend/internal/types"
)

// AuditService writes the compliance trail. Record must run inside the same
// transaction as the state change it describes; a failed append rolls the
// change back with it.
type AuditService interface {
	Record(ctx context.Context, tx *gorm.DB, actor uuid.UUID, action string, resourceType string, resourceID uuid.UUID, details map[string]any) error
	Trail(ctx context.Context, resourceType string, resourceID uuid.UUID) ([]*types.AuditLogEntry, error)
}

type auditService struct {
	log  *logger.Logger
	repo repos.AuditLogRepo
}

func NewAuditService(log *logger.Logger, repo repos.AuditLogRepo) AuditService {
	return &auditService{
		log:  log.With("service", "AuditService"),
		repo: repo,
	}
}

func (s *auditService) Record(ctx context.Context, tx *gorm.DB, actor uuid.UUID, action string, resourceType string, resourceID uuid.UUID, details map[string]any) error {
	entry := &types.AuditLogEntry{
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if len(details) > 0 {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		entry.Details = b
	}
	if _, err := s.repo.Append(ctx, tx, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *auditService) Trail(ctx context.Context, resourceType string, resourceID uuid.UUID) ([]*types.AuditLogEntry, error) {
	return s.repo.ListByResource(ctx, nil, resourceType, resourceID)
}
