package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medscribe/medscribe-backend/internal/platform/logger"
	"github.com/medscribe/medscribe-backend/internal/types"
)

type EditHistoryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, entry *types.EditHistoryEntry) (*types.EditHistoryEntry, error)
	ListByConsultation(ctx context.Context, tx *gorm.DB, consultationID uuid.UUID) ([]*types.EditHistoryEntry, error)
}

type editHistoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEditHistoryRepo(db *gorm.DB, baseLog *logger.Logger) EditHistoryRepo {
	return &editHistoryRepo{db: db, log: baseLog.With("repo", "EditHistoryRepo")}
}

func (r *editHistoryRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.EditHistoryEntry) (*types.EditHistoryEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if entry == nil {
		return nil, errors.New("nil edit history entry")
	}
	if err := transaction.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *editHistoryRepo) ListByConsultation(ctx context.Context, tx *gorm.DB, consultationID uuid.UUID) ([]*types.EditHistoryEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.EditHistoryEntry
	if consultationID == uuid.Nil {
		return out, nil
	}
	err := transaction.WithContext(ctx).
		Where("consultation_id = ?", consultationID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
