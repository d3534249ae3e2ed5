package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medscribe/medscribe-backend/internal/platform/logger"
	"github.com/medscribe/medscribe-backend/internal/types"
)

type ConsultationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, c *types.Consultation) (*types.Consultation, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Consultation, error)
	GetByIDForUser(ctx context.Context, tx *gorm.DB, id uuid.UUID, ownerUserID uuid.UUID) (*types.Consultation, error)
	ListByUser(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, status string, limit int) ([]*types.Consultation, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	SumCostSince(ctx context.Context, tx *gorm.DB, since time.Time) (float64, error)
}

type consultationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConsultationRepo(db *gorm.DB, baseLog *logger.Logger) ConsultationRepo {
	return &consultationRepo{db: db, log: baseLog.With("repo", "ConsultationRepo")}
}

func (r *consultationRepo) Create(ctx context.Context, tx *gorm.DB, c *types.Consultation) (*types.Consultation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if c == nil {
		return nil, errors.New("nil consultation")
	}
	if err := transaction.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

func (r *consultationRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Consultation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var c types.Consultation
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *consultationRepo) GetByIDForUser(ctx context.Context, tx *gorm.DB, id uuid.UUID, ownerUserID uuid.UUID) (*types.Consultation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || ownerUserID == uuid.Nil {
		return nil, nil
	}
	var c types.Consultation
	err := transaction.WithContext(ctx).
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *consultationRepo) ListByUser(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, status string, limit int) ([]*types.Consultation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 50
	}
	q := transaction.WithContext(ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at DESC").
		Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []*types.Consultation
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *consultationRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.Consultation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *consultationRepo) SumCostSince(ctx context.Context, tx *gorm.DB, since time.Time) (float64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var total float64
	err := transaction.WithContext(ctx).
		Model(&types.Consultation{}).
		Where("created_at >= ?", since).
		Select("COALESCE(SUM(cost), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
