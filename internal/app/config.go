package app

import (
	"github.com/medscribe/medscribe-backend/internal/platform/envutil"
	"github.com/medscribe/medscribe-backend/internal/platform/logger"
	"github.com/medscribe/medscribe-backend/internal/services"
)

type Config struct {
	Limits services.ConsultationLimits
	Clinic services.ClinicMetadata

	// rupees; sized for a small-clinic deployment
	MonthlyBudget        float64
	TranscribeRatePerMin float64
	NoteGenCost          float64

	PipelineConcurrency int
	AllowOrigins        []string
}

func LoadConfig(log *logger.Logger) Config {
	log.Info("Loading configuration...")
	return Config{
		Limits: services.ConsultationLimits{
			MaxUploadBytes: envutil.Int64("MAX_UPLOAD_BYTES", 50*1024*1024),
			MaxDurationSec: float64(envutil.Int("MAX_DURATION_SEC", 30*60)),
			Formats:        envutil.StringSlice("AUDIO_FORMATS", []string{"mp3", "wav", "webm", "ogg", "m4a"}),
			Languages:      envutil.StringSlice("SUPPORTED_LANGUAGES", []string{"ta", "te", "hi", "en"}),
		},
		Clinic: services.ClinicMetadata{
			Name:    envutil.String("CLINIC_NAME", "MedScribe Clinic"),
			Address: envutil.String("CLINIC_ADDRESS", ""),
			Phone:   envutil.String("CLINIC_PHONE", ""),
		},
		MonthlyBudget:        envutil.Float("MONTHLY_BUDGET", 5000),
		TranscribeRatePerMin: envutil.Float("TRANSCRIBE_RATE_PER_MIN", 0.50),
		NoteGenCost:          envutil.Float("NOTE_GEN_COST", 0.15),
		PipelineConcurrency:  envutil.Int("PIPELINE_CONCURRENCY", 4),
		AllowOrigins:         envutil.StringSlice("CORS_ALLOW_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}
}
