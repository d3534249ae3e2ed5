package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/medscribe/medscribe-backend/internal/jobs/pipeline"
	"github.com/medscribe/medscribe-backend/internal/platform/blob"
	"github.com/medscribe/medscribe-backend/internal/platform/envutil"
	"github.com/medscribe/medscribe-backend/internal/platform/llm"
	"github.com/medscribe/medscribe-backend/internal/platform/localasr"
	"github.com/medscribe/medscribe-backend/internal/platform/logger"
	"github.com/medscribe/medscribe-backend/internal/services"
)

type Services struct {
	Audit        services.AuditService
	Budget       services.CostBudget
	Transcribe   services.TranscriptionService
	NoteGen      services.NoteGenerator
	Render       services.DocumentRenderService
	Consultation services.ConsultationService
	Review       services.ReviewService
	Runner       *pipeline.Runner
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos) (Services, error) {
	log.Info("Wiring services...")

	store, err := newBlobStore(log)
	if err != nil {
		return Services{}, fmt.Errorf("init blob store: %w", err)
	}

	audit := services.NewAuditService(log, r.AuditLog)

	// resume the month's spend so a restart cannot blow the cap
	monthStart := time.Now().UTC().Truncate(24 * time.Hour)
	monthStart = time.Date(monthStart.Year(), monthStart.Month(), 1, 0, 0, 0, 0, time.UTC)
	spent, err := r.Consultation.SumCostSince(context.Background(), nil, monthStart)
	if err != nil {
		return Services{}, fmt.Errorf("seed budget: %w", err)
	}
	budget := services.NewMonthlyCostBudget(log, cfg.MonthlyBudget, spent)

	primary, err := services.NewGCPSpeechProvider(log)
	if err != nil {
		return Services{}, fmt.Errorf("init speech provider: %w", err)
	}
	fallbackASR := services.NewLocalASRProvider(log, localasr.NewClient(log))
	transcribe := services.NewTranscriptionService(log, primary, fallbackASR, budget, cfg.Limits.Languages, cfg.TranscribeRatePerMin)

	llmClient, err := llm.NewClient(log)
	if err != nil {
		return Services{}, fmt.Errorf("init llm client: %w", err)
	}
	ruleGen, err := services.NewRuleBasedGenerator(log)
	if err != nil {
		return Services{}, fmt.Errorf("init rule-based generator: %w", err)
	}
	notegen := services.NewNoteGenService(log, llmClient, ruleGen, cfg.NoteGenCost)

	render := services.NewDocumentRenderService(log)

	consultation := services.NewConsultationService(
		log, db, r.Consultation, transcribe, notegen, render, store, audit, cfg.Limits, cfg.Clinic)
	review := services.NewReviewService(log, db, r.Consultation, r.EditHistory, audit)

	runner := pipeline.NewRunner(log, cfg.PipelineConcurrency, consultation.ProcessPipeline, consultation.MarkFailed)
	consultation.SetDispatcher(runner)

	return Services{
		Audit:        audit,
		Budget:       budget,
		Transcribe:   transcribe,
		NoteGen:      notegen,
		Render:       render,
		Consultation: consultation,
		Review:       review,
		Runner:       runner,
	}, nil
}

func newBlobStore(log *logger.Logger) (blob.Store, error) {
	switch envutil.String("BLOB_BACKEND", "gcs") {
	case "memory":
		return blob.NewMemoryStore(), nil
	default:
		return blob.NewGCSStore(context.Background(), log)
	}
}
