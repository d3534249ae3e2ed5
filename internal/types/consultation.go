package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ConsultationStatus string

const (
	StatusProcessing ConsultationStatus = "processing"
	StatusReview     ConsultationStatus = "review"
	StatusCompleted  ConsultationStatus = "completed"
	StatusFailed     ConsultationStatus = "failed"
)

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending_review"
	ReviewUnder    ReviewStatus = "under_review"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// Method tags which provider produced a transcript or note.
const (
	MethodPrimary  = "primary"
	MethodFallback = "fallback"
)

// Pipeline stage keys for the Progress map.
const (
	StageTranscription    = "transcription"
	StageEntityExtraction = "entity_extraction"
	StageSOAPGeneration   = "soap_generation"
	StagePDFGeneration    = "pdf_generation"
)

const (
	StagePending    = "pending"
	StageProcessing = "processing"
	StageCompleted  = "completed"
)

// Consultation is the central aggregate: one uploaded recording and everything
// derived from it. Structured fields (note, entities, segments, progress) live
// in jsonb columns.
type Consultation struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;index;not null" json:"owner_user_id"`

	PatientName      string  `gorm:"column:patient_name" json:"patient_name,omitempty"`
	Language         string  `gorm:"not null" json:"language"`
	AudioRef         string  `gorm:"column:audio_ref" json:"audio_ref"`
	AudioFormat      string  `gorm:"column:audio_format" json:"audio_format"`
	AudioSizeBytes   int64   `gorm:"column:audio_size_bytes" json:"audio_size_bytes"`
	AudioDurationSec float64 `gorm:"column:audio_duration_sec" json:"audio_duration_sec"`

	Status   ConsultationStatus `gorm:"index;not null;default:processing" json:"status"`
	Progress datatypes.JSON     `gorm:"type:jsonb" json:"progress,omitempty"`

	Transcript           string         `gorm:"column:transcript" json:"transcript,omitempty"`
	TranscriptConfidence float64        `gorm:"column:transcript_confidence" json:"transcript_confidence"`
	TranscriptMethod     string         `gorm:"column:transcript_method" json:"transcript_method,omitempty"`
	Segments             datatypes.JSON `gorm:"type:jsonb" json:"segments,omitempty"`

	Entities         datatypes.JSON `gorm:"type:jsonb" json:"entities,omitempty"`
	Note             datatypes.JSON `gorm:"type:jsonb" json:"note,omitempty"`
	DerivedCodes     datatypes.JSON `gorm:"type:jsonb;column:derived_codes" json:"derived_codes,omitempty"`
	GenerationMethod string         `gorm:"column:generation_method" json:"generation_method,omitempty"`

	ReviewStatus ReviewStatus `gorm:"column:review_status" json:"review_status,omitempty"`
	EditCount    int          `gorm:"column:edit_count;not null;default:0" json:"edit_count"`
	LastEditor   *uuid.UUID   `gorm:"type:uuid;column:last_editor" json:"last_editor,omitempty"`
	ApprovedBy   *uuid.UUID   `gorm:"type:uuid;column:approved_by" json:"approved_by,omitempty"`
	ApprovedAt   *time.Time   `gorm:"column:approved_at" json:"approved_at,omitempty"`

	Cost        float64 `gorm:"column:cost;not null;default:0" json:"cost"`
	DocumentRef string  `gorm:"column:document_ref" json:"document_ref,omitempty"`
	ErrorDetail string  `gorm:"column:error_detail" json:"-"`

	CreatedAt   time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Consultation) TableName() string {
	return "consultation"
}

func (c *Consultation) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// PlanItem is one line of the treatment plan. Structured medication orders
// carry medication/dosage/frequency; anything else (follow-up instructions,
// lifestyle advice) is free text.
type PlanItem struct {
	Medication string `json:"medication,omitempty"`
	Dosage     string `json:"dosage,omitempty"`
	Frequency  string `json:"frequency,omitempty"`
	Text       string `json:"text,omitempty"`
}

// String renders a plan item the way it appears in the note body.
func (p PlanItem) String() string {
	if p.Medication != "" {
		s := p.Medication
		if p.Dosage != "" {
			s += " " + p.Dosage
		}
		if p.Frequency != "" {
			s += " - " + p.Frequency
		}
		return s
	}
	return p.Text
}

// Note is the four-section SOAP structure plus its canonical markdown form.
type Note struct {
	Subjective []string   `json:"subjective"`
	Objective  []string   `json:"objective"`
	Assessment []string   `json:"assessment"`
	Plan       []PlanItem `json:"plan"`
	Markdown   string     `json:"markdown,omitempty"`
}

// Entity is one clinical term pulled out of the transcript.
type Entity struct {
	Text       string  `json:"text"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// Entity categories.
const (
	EntitySymptom    = "symptom"
	EntityMedication = "medication"
	EntityDiagnosis  = "diagnosis"
	EntityVital      = "vital"
	EntityDosage     = "dosage"
)

// DiarizedSegment is a speaker-tagged slice of transcript. The lowest speaker
// tag is treated as the clinician.
type DiarizedSegment struct {
	SpeakerTag int     `json:"speaker_tag"`
	Text       string  `json:"text"`
	StartSec   float64 `json:"start_sec,omitempty"`
	EndSec     float64 `json:"end_sec,omitempty"`
}

func (c *Consultation) SetNote(n *Note) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	c.Note = datatypes.JSON(raw)
	return nil
}

func (c *Consultation) GetNote() (*Note, error) {
	if len(c.Note) == 0 {
		return nil, nil
	}
	var n Note
	if err := json.Unmarshal(c.Note, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Consultation) GetEntities() ([]Entity, error) {
	if len(c.Entities) == 0 {
		return nil, nil
	}
	var out []Entity
	if err := json.Unmarshal(c.Entities, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Consultation) GetSegments() ([]DiarizedSegment, error) {
	if len(c.Segments) == 0 {
		return nil, nil
	}
	var out []DiarizedSegment
	if err := json.Unmarshal(c.Segments, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NewProgress returns the initial stage map for a freshly created consultation.
func NewProgress() map[string]string {
	return map[string]string{
		StageTranscription:    StagePending,
		StageEntityExtraction: StagePending,
		StageSOAPGeneration:   StagePending,
		StagePDFGeneration:    StagePending,
	}
}

func MarshalProgress(p map[string]string) datatypes.JSON {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
