package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medscribe/medscribe-backend/internal/platform/apierr"
	"github.com/medscribe/medscribe-backend/internal/platform/logger"
	"github.com/medscribe/medscribe-backend/internal/repos"
	"github.com/medscribe/medscribe-backend/internal/types"
)

// ReviewService covers the clinician's half of the workflow: editing the
// generated note, approving it into the final record, or sending it back.
type ReviewService interface {
	Edit(ctx context.Context, userID uuid.UUID, consultationID uuid.UUID, note *types.Note, reason string) (*types.Consultation, error)
	Approve(ctx context.Context, userID uuid.UUID, consultationID uuid.UUID, note *types.Note) (*types.Consultation, error)
	Reject(ctx context.Context, userID uuid.UUID, consultationID uuid.UUID, reason string) (*types.Consultation, error)
	History(ctx context.Context, userID uuid.UUID, consultationID uuid.UUID) ([]*types.EditHistoryEntry, error)
}

type reviewService struct {
	log     *logger.Logger
	db      *gorm.DB
	consult repos.ConsultationRepo
	edits   repos.EditHistoryRepo
	audit   AuditService

	// one in-flight edit or approval per consultation; the loser gets an
	// edit_conflict instead of silently clobbering
	inFlight sync.Map
}

func NewReviewService(log *logger.Logger, db *gorm.DB, consult repos.ConsultationRepo, edits repos.EditHistoryRepo, audit AuditService) ReviewService {
	return &reviewService{
		log:     log.With("service", "ReviewService"),
		db:      db,
		consult: consult,
		edits:   edits,
		audit:   audit,
	}
}

func (s *reviewService) acquire(id uuid.UUID) (release func(), err error) {
	if _, loaded := s.inFlight.LoadOrStore(id, struct{}{}); loaded {
		return nil, apierr.Conflict(fmt.Errorf("consultation %s has a concurrent edit in progress", id))
	}
	return func() { s.inFlight.Delete(id) }, nil
}

func (s *reviewService) load(ctx context.Context, userID uuid.UUID, consultationID uuid.UUID) (*types.Consultation, error) {
	c, err := s.consult.GetByIDForUser(ctx, nil, consultationID, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apierr.NotFound(fmt.Errorf("consultation %s not found", consultationID))
	}
	return c, nil
}

func validateNote(n *types.Note) error {
	if n == nil {
		return apierr.Validation(errors.New("note required"))
	}
	if len(n.Subjective) == 0 || len(n.Objective) == 0 || len(n.Assessment) == 0 || len(n.Plan) == 0 {
		return apierr.Validation(errors.New("note must contain all four sections"))
	}
	return nil
}

func (s *reviewService) Edit(ctx context.Context, userID uuid.UUID, consultationID uuid.UUID, note *types.Note, reason string) (*types.Consultation, error) {
	if err := validateNote(note); err != nil {
		return nil, err
	}
	release, err := s.acquire(consultationID)
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.load(ctx, userID, consultationID)
	if err != nil {
		return nil, err
	}
	if c.Status != types.StatusReview {
		return nil, apierr.Validation(fmt.Errorf("consultation is %s, only review-stage notes can be edited", c.Status))
	}

	note.Markdown = BuildNoteMarkdown(note)
	newRaw, err := json.Marshal(note)
	if err != nil {
		return nil, fmt.Errorf("marshal note: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"note":          newRaw,
			"edit_count":    gorm.Expr("edit_count + 1"),
			"review_status": types.ReviewUnder,
			"last_editor":   userID,
		}
		if err := s.consult.UpdateFields(ctx, tx, consultationID, updates); err != nil {
			return err
		}
		entry := &types.EditHistoryEntry{
			ConsultationID: consultationID,
			Editor:         userID,
			Field:          "note",
			OldValue:       c.Note,
			NewValue:       newRaw,
			Reason:         reason,
		}
		if _, err := s.edits.Create(ctx, tx, entry); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, userID, types.AuditUpdate, "consultation", consultationID, map[string]any{
			"field":      "note",
			"edit_count": c.EditCount + 1,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("note edited", "consultation_id", consultationID.String(), "user_id", userID.String())
	return s.consult.GetByID(ctx, nil, consultationID)
}

func (s *reviewService) Approve(ctx context.Context, userID uuid.UUID, consultationID uuid.UUID, note *types.Note) (*types.Consultation, error) {
	release, err := s.acquire(consultationID)
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.load(ctx, userID, consultationID)
	if err != nil {
		return nil, err
	}
	if c.Status == types.StatusCompleted && c.ReviewStatus == types.ReviewApproved {
		// repeated approval is a no-op, not an error
		return c, nil
	}
	if c.Status != types.StatusReview {
		return nil, apierr.Validation(fmt.Errorf("consultation is %s, only review-stage notes can be approved", c.Status))
	}

	var finalRaw []byte
	if note != nil {
		if err := validateNote(note); err != nil {
			return nil, err
		}
		note.Markdown = BuildNoteMarkdown(note)
		finalRaw, err = json.Marshal(note)
		if err != nil {
			return nil, fmt.Errorf("marshal note: %w", err)
		}
	} else {
		if len(c.Note) == 0 {
			return nil, apierr.Validation(errors.New("cannot approve a consultation without a note"))
		}
		finalRaw = c.Note
	}

	now := time.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"note":          finalRaw,
			"status":        types.StatusCompleted,
			"review_status": types.ReviewApproved,
			"approved_by":   userID,
			"approved_at":   now,
			"completed_at":  now,
		}
		if err := s.consult.UpdateFields(ctx, tx, consultationID, updates); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, userID, types.AuditApprove, "consultation", consultationID, map[string]any{
			"edit_count": c.EditCount,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("consultation approved", "consultation_id", consultationID.String(), "user_id", userID.String())
	return s.consult.GetByID(ctx, nil, consultationID)
}

func (s *reviewService) Reject(ctx context.Context, userID uuid.UUID, consultationID uuid.UUID, reason string) (*types.Consultation, error) {
	release, err := s.acquire(consultationID)
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.load(ctx, userID, consultationID)
	if err != nil {
		return nil, err
	}
	if c.Status != types.StatusReview {
		return nil, apierr.Validation(fmt.Errorf("consultation is %s, only review-stage notes can be rejected", c.Status))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"review_status": types.ReviewRejected,
			"last_editor":   userID,
		}
		if err := s.consult.UpdateFields(ctx, tx, consultationID, updates); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, userID, types.AuditUpdate, "consultation", consultationID, map[string]any{
			"review_status": string(types.ReviewRejected),
			"reason":        reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.consult.GetByID(ctx, nil, consultationID)
}

func (s *reviewService) History(ctx context.Context, userID uuid.UUID, consultationID uuid.UUID) ([]*types.EditHistoryEntry, error) {
	if _, err := s.load(ctx, userID, consultationID); err != nil {
		return nil, err
	}
	return s.edits.ListByConsultation(ctx, nil, consultationID)
}
