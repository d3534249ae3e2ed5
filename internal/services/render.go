package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/signintech/gopdf"

	"github.com/medscribe/medscribe-backend/internal/normalization"
	"github.com/medscribe/medscribe-backend/internal/platform/apierr"
	"github.com/medscribe/medscribe-backend/internal/platform/envutil"
	"github.com/medscribe/medscribe-backend/internal/platform/logger"
	"github.com/medscribe/medscribe-backend/internal/types"
)

// ClinicMetadata is printed in the document header. It comes from
// configuration, not from the consultation.
type ClinicMetadata struct {
	Name    string
	Address string
	Phone   string
}

// DocumentRenderService turns an approved consultation into the PDF handed to
// the patient. Rendering is deterministic: the same consultation and clinic
// always produce the same bytes.
type DocumentRenderService interface {
	Render(ctx context.Context, c *types.Consultation, clinic ClinicMetadata) ([]byte, error)
	Filename(c *types.Consultation) string
}

type documentRenderService struct {
	log       *logger.Logger
	fontPaths []string
}

func NewDocumentRenderService(log *logger.Logger) DocumentRenderService {
	paths := []string{
		envutil.String("PDF_FONT_PATH", ""),
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	}
	return &documentRenderService{
		log:       log.With("service", "DocumentRenderService"),
		fontPaths: paths,
	}
}

func (s *documentRenderService) Filename(c *types.Consultation) string {
	patient := strings.TrimSpace(c.PatientName)
	if patient == "" {
		patient = "patient"
	}
	patient = sanitizeFilename(patient)
	return fmt.Sprintf("consultation_%s_%s.pdf", patient, c.ID.String()[:8])
}

func sanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "patient"
	}
	return b.String()
}

func (s *documentRenderService) Render(ctx context.Context, c *types.Consultation, clinic ClinicMetadata) ([]byte, error) {
	note, err := c.GetNote()
	if err != nil {
		return nil, apierr.Render(fmt.Errorf("decode note: %w", err))
	}
	if note == nil {
		return nil, apierr.Render(errors.New("consultation has no note to render"))
	}

	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	var fontErr error
	fontLoaded := false
	for _, path := range s.fontPaths {
		if path == "" {
			continue
		}
		if err := pdf.AddTTFFont("body", path); err == nil {
			fontLoaded = true
			break
		} else {
			fontErr = err
		}
	}
	if !fontLoaded {
		return nil, apierr.Render(fmt.Errorf("no usable TTF font found: %w", fontErr))
	}

	setFont := func(size float64) error {
		if err := pdf.SetFont("body", "", size); err != nil {
			return apierr.Render(fmt.Errorf("set font: %w", err))
		}
		return nil
	}
	writeLines := func(text string, size float64, lineHeight float64) error {
		if err := setFont(size); err != nil {
			return err
		}
		for _, line := range strings.Split(text, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			wrapped, _ := pdf.SplitText(line, 500)
			for _, w := range wrapped {
				pdf.Cell(nil, w)
				pdf.Br(lineHeight)
			}
		}
		return nil
	}

	// header
	if err := setFont(18); err != nil {
		return nil, err
	}
	pdf.Cell(nil, clinic.Name)
	pdf.Br(20)
	if err := setFont(10); err != nil {
		return nil, err
	}
	if clinic.Address != "" {
		pdf.Cell(nil, clinic.Address)
		pdf.Br(13)
	}
	if clinic.Phone != "" {
		pdf.Cell(nil, "Phone: "+clinic.Phone)
		pdf.Br(13)
	}
	pdf.Br(8)

	if err := setFont(14); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Consultation Note")
	pdf.Br(18)
	if err := setFont(10); err != nil {
		return nil, err
	}
	if c.PatientName != "" {
		pdf.Cell(nil, "Patient: "+c.PatientName)
		pdf.Br(13)
	}
	pdf.Cell(nil, "Consultation ID: "+c.ID.String())
	pdf.Br(13)
	pdf.Cell(nil, "Date: "+c.CreatedAt.UTC().Format("2006-01-02"))
	pdf.Br(13)
	pdf.Cell(nil, "Language: "+c.Language)
	pdf.Br(20)

	section := func(title string, lines []string) error {
		if err := setFont(12); err != nil {
			return err
		}
		pdf.Cell(nil, title)
		pdf.Br(15)
		body := normalization.Normalize(strings.Join(lines, "\n"))
		if body == "" {
			body = "- Not documented"
		}
		if err := writeLines(body, 10, 12); err != nil {
			return err
		}
		pdf.Br(8)
		return nil
	}

	if err := section("Subjective", note.Subjective); err != nil {
		return nil, err
	}
	if err := section("Objective", note.Objective); err != nil {
		return nil, err
	}
	if err := section("Assessment", note.Assessment); err != nil {
		return nil, err
	}
	planLines := make([]string, 0, len(note.Plan))
	for _, p := range note.Plan {
		planLines = append(planLines, p.String())
	}
	if err := section("Plan", planLines); err != nil {
		return nil, err
	}

	codes, _ := decodeStringSlice(c.DerivedCodes)
	if len(codes) > 0 {
		if err := section("ICD-10 Codes", codes); err != nil {
			return nil, err
		}
	}

	if err := setFont(8); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Generated by MedScribe. Reviewed and approved by the attending clinician.")

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, apierr.Render(fmt.Errorf("write pdf: %w", err))
	}
	return buf.Bytes(), nil
}

func decodeStringSlice(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
