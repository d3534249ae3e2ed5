package services

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medscribe/medscribe-backend/internal/types"
)

func renderableConsultation(t *testing.T) *types.Consultation {
	t.Helper()
	raw, err := json.Marshal(sampleNote())
	if err != nil {
		t.Fatalf("marshal note: %v", err)
	}
	codes, _ := json.Marshal([]string{"R50.9"})
	return &types.Consultation{
		ID:           uuid.MustParse("3f2b8c44-1111-4222-8333-944455566677"),
		OwnerUserID:  uuid.New(),
		PatientName:  "Lakshmi Narayanan",
		Language:     "ta",
		Status:       types.StatusCompleted,
		Note:         raw,
		DerivedCodes: codes,
		CreatedAt:    time.Date(2026, time.January, 12, 9, 30, 0, 0, time.UTC),
	}
}

func fontAvailable(s *documentRenderService) bool {
	for _, p := range s.fontPaths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

func TestRenderDeterministic(t *testing.T) {
	svc := NewDocumentRenderService(newTestLogger(t)).(*documentRenderService)
	if !fontAvailable(svc) {
		t.Skip("no TTF font available on this host")
	}
	c := renderableConsultation(t)
	clinic := ClinicMetadata{Name: "Test Clinic", Address: "1 Main Rd", Phone: "044-1234"}

	a, err := svc.Render(context.Background(), c, clinic)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	b, err := svc.Render(context.Background(), c, clinic)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("same consultation must render to identical bytes")
	}
	if !bytes.HasPrefix(a, []byte("%PDF")) {
		t.Fatal("output is not a PDF")
	}
}

func TestRenderWithoutNote(t *testing.T) {
	svc := NewDocumentRenderService(newTestLogger(t))
	c := renderableConsultation(t)
	c.Note = nil
	if _, err := svc.Render(context.Background(), c, ClinicMetadata{Name: "X"}); err == nil {
		t.Fatal("expected error for consultation without a note")
	}
}

func TestDocumentFilename(t *testing.T) {
	svc := NewDocumentRenderService(newTestLogger(t))
	c := renderableConsultation(t)

	got := svc.Filename(c)
	want := "consultation_lakshmi_narayanan_3f2b8c44.pdf"
	if got != want {
		t.Fatalf("filename = %q, want %q", got, want)
	}

	c.PatientName = ""
	if got := svc.Filename(c); got != "consultation_patient_3f2b8c44.pdf" {
		t.Fatalf("filename = %q", got)
	}
}
