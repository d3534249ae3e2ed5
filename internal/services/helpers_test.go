package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/medscribe/medscribe-backend/internal/db"
	"github.com/medscribe/medscribe-backend/internal/repos"
	"github.com/medscribe/medscribe-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	gdb.Exec("PRAGMA busy_timeout = 5000")
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func sampleNote() *types.Note {
	return &types.Note{
		Subjective: []string{"Fever for 2 days"},
		Objective:  []string{"Temperature: 101 F"},
		Assessment: []string{"Viral fever"},
		Plan: []types.PlanItem{
			{Medication: "Paracetamol", Dosage: "500mg", Frequency: "TID"},
			{Text: "Review after 3 days"},
		},
	}
}

// seedReviewConsultation inserts a consultation that has finished its
// pipeline and is waiting for the clinician.
func seedReviewConsultation(t *testing.T, gdb *gorm.DB, owner uuid.UUID) *types.Consultation {
	t.Helper()
	note := sampleNote()
	raw, err := json.Marshal(note)
	if err != nil {
		t.Fatalf("marshal note: %v", err)
	}
	c := &types.Consultation{
		ID:               uuid.New(),
		OwnerUserID:      owner,
		PatientName:      "Lakshmi",
		Language:         "ta",
		AudioRef:         "seed.mp3",
		AudioFormat:      "mp3",
		AudioSizeBytes:   1024,
		AudioDurationSec: 60,
		Status:           types.StatusReview,
		ReviewStatus:     types.ReviewPending,
		Note:             raw,
		Transcript:       "seed transcript",
		Progress:         types.MarshalProgress(types.NewProgress()),
	}
	if err := gdb.Create(c).Error; err != nil {
		t.Fatalf("seed consultation: %v", err)
	}
	return c
}

type reviewFixture struct {
	db      *gorm.DB
	consult repos.ConsultationRepo
	edits   repos.EditHistoryRepo
	audits  repos.AuditLogRepo
	audit   AuditService
	review  ReviewService
	owner   uuid.UUID
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	log := newTestLogger(t)
	gdb := newTestDB(t)
	consult := repos.NewConsultationRepo(gdb, log)
	edits := repos.NewEditHistoryRepo(gdb, log)
	audits := repos.NewAuditLogRepo(gdb, log)
	audit := NewAuditService(log, audits)
	return &reviewFixture{
		db:      gdb,
		consult: consult,
		edits:   edits,
		audits:  audits,
		audit:   audit,
		review:  NewReviewService(log, gdb, consult, edits, audit),
		owner:   uuid.New(),
	}
}

func (f *reviewFixture) auditTrail(t *testing.T, id uuid.UUID) []*types.AuditLogEntry {
	t.Helper()
	out, err := f.audits.ListByResource(context.Background(), nil, "consultation", id)
	if err != nil {
		t.Fatalf("list audit trail: %v", err)
	}
	return out
}
