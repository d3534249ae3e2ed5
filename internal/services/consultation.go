package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medscribe/medscribe-backend/internal/observability"
	"github.com/medscribe/medscribe-backend/internal/platform/apierr"
	"github.com/medscribe/medscribe-backend/internal/platform/blob"
	"github.com/medscribe/medscribe-backend/internal/platform/logger"
	"github.com/medscribe/medscribe-backend/internal/repos"
	"github.com/medscribe/medscribe-backend/internal/types"
)

// failedMessage is the only error text a failed consultation exposes to
// callers; provider detail stays in the error_detail column and the logs.
const failedMessage = "Processing failed. The audio could not be converted into a note; please re-record and try again."

// CreateConsultationInput carries a validated upload into the service.
type CreateConsultationInput struct {
	OwnerUserID uuid.UUID
	PatientName string
	Language    string
	Audio       []byte
	Format      string
	DurationSec float64
}

// ConsultationLimits bound what Create accepts.
type ConsultationLimits struct {
	MaxUploadBytes int64
	MaxDurationSec float64
	Formats        []string
	Languages      []string
}

// PipelineDispatcher hands a consultation to the background runner.
type PipelineDispatcher interface {
	Dispatch(id uuid.UUID)
}

// ConsultationService owns the consultation lifecycle: intake, the async
// processing pipeline, retrieval, and document export.
type ConsultationService interface {
	Create(ctx context.Context, in CreateConsultationInput) (*types.Consultation, error)
	Get(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*types.Consultation, error)
	List(ctx context.Context, userID uuid.UUID, status string, limit int) ([]*types.Consultation, error)
	Document(ctx context.Context, userID uuid.UUID, id uuid.UUID) ([]byte, string, error)

	// ProcessPipeline and MarkFailed are invoked by the pipeline runner.
	ProcessPipeline(ctx context.Context, id uuid.UUID)
	MarkFailed(ctx context.Context, id uuid.UUID, stage string, cause error)
}

type consultationService struct {
	log        *logger.Logger
	db         *gorm.DB
	consult    repos.ConsultationRepo
	transcribe TranscriptionService
	notegen    NoteGenerator
	render     DocumentRenderService
	store      blob.Store
	audit      AuditService
	limits     ConsultationLimits
	clinic     ClinicMetadata
	dispatcher PipelineDispatcher
}

func NewConsultationService(
	log *logger.Logger,
	db *gorm.DB,
	consult repos.ConsultationRepo,
	transcribe TranscriptionService,
	notegen NoteGenerator,
	render DocumentRenderService,
	store blob.Store,
	audit AuditService,
	limits ConsultationLimits,
	clinic ClinicMetadata,
) *consultationService {
	return &consultationService{
		log:        log.With("service", "ConsultationService"),
		db:         db,
		consult:    consult,
		transcribe: transcribe,
		notegen:    notegen,
		render:     render,
		store:      store,
		audit:      audit,
		limits:     limits,
		clinic:     clinic,
	}
}

// SetDispatcher breaks the construction cycle between the service and the
// runner that calls back into it.
func (s *consultationService) SetDispatcher(d PipelineDispatcher) {
	s.dispatcher = d
}

func (s *consultationService) validate(in CreateConsultationInput) error {
	if in.OwnerUserID == uuid.Nil {
		return apierr.Validation(errors.New("owner user id required"))
	}
	if len(in.Audio) == 0 {
		return apierr.Validation(errors.New("audio file required"))
	}
	if int64(len(in.Audio)) > s.limits.MaxUploadBytes {
		return apierr.Validation(fmt.Errorf("audio exceeds maximum size of %d bytes", s.limits.MaxUploadBytes))
	}
	lang := strings.ToLower(strings.TrimSpace(in.Language))
	langOK := false
	for _, l := range s.limits.Languages {
		if lang == l {
			langOK = true
			break
		}
	}
	if !langOK {
		return apierr.Validation(fmt.Errorf("unsupported language %q, supported: %s", in.Language, strings.Join(s.limits.Languages, ", ")))
	}
	format := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(in.Format), "."))
	formatOK := false
	for _, f := range s.limits.Formats {
		if format == f {
			formatOK = true
			break
		}
	}
	if !formatOK {
		return apierr.Validation(fmt.Errorf("unsupported audio format %q, supported: %s", in.Format, strings.Join(s.limits.Formats, ", ")))
	}
	if in.DurationSec > s.limits.MaxDurationSec {
		return apierr.Validation(fmt.Errorf("audio exceeds maximum duration of %.0f seconds", s.limits.MaxDurationSec))
	}
	return nil
}

func (s *consultationService) Create(ctx context.Context, in CreateConsultationInput) (*types.Consultation, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	lang := strings.ToLower(strings.TrimSpace(in.Language))
	format := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(in.Format), "."))

	duration := in.DurationSec
	if duration <= 0 {
		// rough PCM-based guess; only used for budget estimation
		duration = float64(len(in.Audio)) / 32000.0
	}

	id := uuid.New()
	audioKey := fmt.Sprintf("%s.%s", id.String(), format)
	if err := s.store.Upload(ctx, blob.CategoryAudio, audioKey, "audio/"+format, bytes.NewReader(in.Audio)); err != nil {
		return nil, apierr.ExternalService(fmt.Errorf("store audio: %w", err))
	}

	c := &types.Consultation{
		ID:               id,
		OwnerUserID:      in.OwnerUserID,
		PatientName:      strings.TrimSpace(in.PatientName),
		Language:         lang,
		AudioRef:         audioKey,
		AudioFormat:      format,
		AudioSizeBytes:   int64(len(in.Audio)),
		AudioDurationSec: duration,
		Status:           types.StatusProcessing,
		Progress:         types.MarshalProgress(types.NewProgress()),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.consult.Create(ctx, tx, c); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, in.OwnerUserID, types.AuditCreate, "consultation", id, map[string]any{
			"language":     lang,
			"audio_format": format,
			"size_bytes":   len(in.Audio),
		})
	})
	if err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(id)
	}
	s.log.Info("consultation created", "consultation_id", id.String(), "language", lang)
	return c, nil
}

func (s *consultationService) Get(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*types.Consultation, error) {
	c, err := s.consult.GetByIDForUser(ctx, nil, id, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apierr.NotFound(fmt.Errorf("consultation %s not found", id))
	}
	return c, nil
}

func (s *consultationService) List(ctx context.Context, userID uuid.UUID, status string, limit int) ([]*types.Consultation, error) {
	return s.consult.ListByUser(ctx, nil, userID, status, limit)
}

func (s *consultationService) Document(ctx context.Context, userID uuid.UUID, id uuid.UUID) ([]byte, string, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, "", err
	}
	if c.Status != types.StatusCompleted {
		return nil, "", apierr.Validation(fmt.Errorf("consultation is %s, documents are available once approved", c.Status))
	}

	filename := s.render.Filename(c)

	// serve the stored copy when one exists; every successful export is
	// audited before bytes go out
	if c.DocumentRef != "" {
		rc, err := s.store.Download(ctx, blob.CategoryDocument, c.DocumentRef)
		if err == nil {
			defer rc.Close()
			b, rerr := io.ReadAll(rc)
			if rerr == nil {
				if aerr := s.audit.Record(ctx, nil, userID, types.AuditExport, "consultation", id, map[string]any{
					"document_ref": c.DocumentRef,
				}); aerr != nil {
					return nil, "", aerr
				}
				return b, filename, nil
			}
		}
		s.log.Warn("stored document unavailable, re-rendering", "consultation_id", id.String())
	}

	pdfBytes, err := s.render.Render(ctx, c, s.clinic)
	if err != nil {
		return nil, "", err
	}

	docKey := id.String() + ".pdf"
	stored := true
	if err := s.store.Upload(ctx, blob.CategoryDocument, docKey, "application/pdf", bytes.NewReader(pdfBytes)); err != nil {
		// export still succeeds; the next request re-renders
		s.log.Warn("failed to persist rendered document", "consultation_id", id.String(), "error", err.Error())
		stored = false
	}
	if stored && c.DocumentRef == "" {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if uerr := s.consult.UpdateFields(ctx, tx, id, map[string]interface{}{
				"document_ref": docKey,
				"progress":     types.MarshalProgress(progressAll(types.StageCompleted)),
			}); uerr != nil {
				return uerr
			}
			return s.audit.Record(ctx, tx, userID, types.AuditExport, "consultation", id, map[string]any{
				"document_ref": docKey,
			})
		})
		if err != nil {
			return nil, "", err
		}
	} else if err := s.audit.Record(ctx, nil, userID, types.AuditExport, "consultation", id, map[string]any{
		"document_ref": c.DocumentRef,
	}); err != nil {
		return nil, "", err
	}
	return pdfBytes, filename, nil
}

// ProcessPipeline runs the full transcription and note generation flow for
// one consultation. It is safe to call twice; a consultation already past
// processing is left alone.
func (s *consultationService) ProcessPipeline(ctx context.Context, id uuid.UUID) {
	c, err := s.consult.GetByID(ctx, nil, id)
	if err != nil || c == nil {
		s.log.Error("pipeline: load consultation", "consultation_id", id.String(), "error", fmt.Sprint(err))
		return
	}
	if c.Status != types.StatusProcessing {
		s.log.Info("pipeline: consultation not in processing, skipping",
			"consultation_id", id.String(), "status", string(c.Status))
		return
	}

	progress := types.NewProgress()
	progress[types.StageTranscription] = types.StageProcessing
	if err := s.updateProgress(ctx, id, progress); err != nil {
		s.MarkFailed(ctx, id, types.StageTranscription, err)
		return
	}

	audio, err := s.loadAudio(ctx, c)
	if err != nil {
		s.MarkFailed(ctx, id, types.StageTranscription, err)
		return
	}

	tRes, err := s.transcribe.Transcribe(ctx, TranscriptionRequest{
		Audio:       audio,
		Format:      c.AudioFormat,
		Language:    c.Language,
		DurationSec: c.AudioDurationSec,
	})
	if err != nil {
		s.MarkFailed(ctx, id, types.StageTranscription, err)
		return
	}
	observability.GetMetrics().RecordCost(ctx, "transcription", tRes.Cost)

	segRaw, _ := json.Marshal(tRes.Segments)
	progress[types.StageTranscription] = types.StageCompleted
	progress[types.StageEntityExtraction] = types.StageProcessing
	progress[types.StageSOAPGeneration] = types.StageProcessing
	err = s.consult.UpdateFields(ctx, nil, id, map[string]interface{}{
		"transcript":            tRes.Text,
		"transcript_confidence": tRes.Confidence,
		"transcript_method":     tRes.Method,
		"segments":              segRaw,
		"cost":                  gorm.Expr("cost + ?", tRes.Cost),
		"progress":              types.MarshalProgress(progress),
	})
	if err != nil {
		s.MarkFailed(ctx, id, types.StageTranscription, err)
		return
	}

	nRes, err := s.notegen.Generate(ctx, NoteGenRequest{
		Transcript:  tRes.Text,
		Segments:    tRes.Segments,
		Language:    c.Language,
		PatientName: c.PatientName,
	})
	if err != nil {
		s.MarkFailed(ctx, id, types.StageSOAPGeneration, err)
		return
	}
	observability.GetMetrics().RecordCost(ctx, "note_generation", nRes.Cost)

	entRaw, _ := json.Marshal(nRes.Entities)
	noteRaw, _ := json.Marshal(nRes.Note)
	codesRaw, _ := json.Marshal(nRes.DerivedCodes)
	progress[types.StageEntityExtraction] = types.StageCompleted
	progress[types.StageSOAPGeneration] = types.StageCompleted

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if uerr := s.consult.UpdateFields(ctx, tx, id, map[string]interface{}{
			"entities":          entRaw,
			"note":              noteRaw,
			"derived_codes":     codesRaw,
			"generation_method": nRes.Method,
			"cost":              gorm.Expr("cost + ?", nRes.Cost),
			"status":            types.StatusReview,
			"review_status":     types.ReviewPending,
			"progress":          types.MarshalProgress(progress),
		}); uerr != nil {
			return uerr
		}
		return s.audit.Record(ctx, tx, c.OwnerUserID, types.AuditUpdate, "consultation", id, map[string]any{
			"status":            string(types.StatusReview),
			"transcript_method": tRes.Method,
			"generation_method": nRes.Method,
		})
	})
	if err != nil {
		s.MarkFailed(ctx, id, types.StageSOAPGeneration, err)
		return
	}

	observability.GetMetrics().RecordPipelineRun(ctx, string(types.StatusReview))
	s.log.Info("pipeline finished",
		"consultation_id", id.String(),
		"transcript_method", tRes.Method,
		"generation_method", nRes.Method)
}

// MarkFailed moves a consultation to its terminal failed state. Provider
// detail is kept internal; the API surface only ever sees failedMessage.
func (s *consultationService) MarkFailed(ctx context.Context, id uuid.UUID, stage string, cause error) {
	// the pipeline deadline may already be burned when we get here; the
	// terminal write must still land
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	detail := stage
	if cause != nil {
		detail = fmt.Sprintf("%s: %v", stage, cause)
	}
	c, err := s.consult.GetByID(ctx, nil, id)
	if err != nil || c == nil {
		s.log.Error("mark failed: load consultation", "consultation_id", id.String(), "error", fmt.Sprint(err))
		return
	}
	if c.Status != types.StatusProcessing {
		return
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if uerr := s.consult.UpdateFields(ctx, tx, id, map[string]interface{}{
			"status":       types.StatusFailed,
			"error_detail": detail,
		}); uerr != nil {
			return uerr
		}
		return s.audit.Record(ctx, tx, c.OwnerUserID, types.AuditUpdate, "consultation", id, map[string]any{
			"status": string(types.StatusFailed),
			"stage":  stage,
		})
	})
	if err != nil {
		s.log.Error("mark failed: persist", "consultation_id", id.String(), "error", err.Error())
		return
	}
	observability.GetMetrics().RecordPipelineRun(ctx, string(types.StatusFailed))
	s.log.Error("pipeline failed", "consultation_id", id.String(), "stage", stage, "error", detail)
}

func (s *consultationService) updateProgress(ctx context.Context, id uuid.UUID, p map[string]string) error {
	return s.consult.UpdateFields(ctx, nil, id, map[string]interface{}{
		"progress": types.MarshalProgress(p),
	})
}

func (s *consultationService) loadAudio(ctx context.Context, c *types.Consultation) ([]byte, error) {
	rc, err := s.store.Download(ctx, blob.CategoryAudio, c.AudioRef)
	if err != nil {
		return nil, fmt.Errorf("download audio %s: %w", c.AudioRef, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func progressAll(state string) map[string]string {
	return map[string]string{
		types.StageTranscription:    state,
		types.StageEntityExtraction: state,
		types.StageSOAPGeneration:   state,
		types.StagePDFGeneration:    state,
	}
}

// FailedUserMessage is what handlers surface for failed consultations.
func FailedUserMessage() string { return failedMessage }
