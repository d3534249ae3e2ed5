package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medscribe/medscribe-backend/internal/platform/logger"
	"github.com/medscribe/medscribe-backend/internal/types"
)

// AuditLogRepo is intentionally append-and-read-only: there is no update or
// delete path, by contract with the compliance viewer.
type AuditLogRepo interface {
	Append(ctx context.Context, tx *gorm.DB, entry *types.AuditLogEntry) (*types.AuditLogEntry, error)
	ListByResource(ctx context.Context, tx *gorm.DB, resourceType string, resourceID uuid.UUID) ([]*types.AuditLogEntry, error)
}

type auditLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditLogRepo(db *gorm.DB, baseLog *logger.Logger) AuditLogRepo {
	return &auditLogRepo{db: db, log: baseLog.With("repo", "AuditLogRepo")}
}

func (r *auditLogRepo) Append(ctx context.Context, tx *gorm.DB, entry *types.AuditLogEntry) (*types.AuditLogEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if entry == nil {
		return nil, errors.New("nil audit entry")
	}
	if err := transaction.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *auditLogRepo) ListByResource(ctx context.Context, tx *gorm.DB, resourceType string, resourceID uuid.UUID) ([]*types.AuditLogEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AuditLogEntry
	if resourceID == uuid.Nil {
		return out, nil
	}
	err := transaction.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
