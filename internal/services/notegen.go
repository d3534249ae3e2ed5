package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/medscribe/medscribe-backend/internal/normalization"
	"github.com/medscribe/medscribe-backend/internal/observability"
	"github.com/medscribe/medscribe-backend/internal/platform/llm"
	"github.com/medscribe/medscribe-backend/internal/platform/logger"
	"github.com/medscribe/medscribe-backend/internal/types"
)

// NoteGenRequest carries a finished transcript into structured note
// generation.
type NoteGenRequest struct {
	Transcript  string
	Segments    []types.DiarizedSegment
	Language    string
	PatientName string
}

// NoteGenResult bundles extracted entities with the generated note and how it
// was produced.
type NoteGenResult struct {
	Entities     []types.Entity
	Note         *types.Note
	DerivedCodes []string
	Method       string
	Cost         float64
}

// NoteGenerator turns a transcript into entities plus a four-section
// clinical note. Implementations must always return a note with all four
// sections present; individual sections may be empty.
type NoteGenerator interface {
	Generate(ctx context.Context, req NoteGenRequest) (*NoteGenResult, error)
}

type noteGenService struct {
	log      *logger.Logger
	llm      llm.Client
	fallback *ruleBasedGenerator
	cost     float64
}

// NewNoteGenService wires the LLM engine with the rule-based generator as
// its fallback. perNoteCost is the flat price charged for one successful
// LLM generation.
func NewNoteGenService(log *logger.Logger, client llm.Client, fallback *ruleBasedGenerator, perNoteCost float64) NoteGenerator {
	return &noteGenService{
		log:      log.With("service", "NoteGenService"),
		llm:      client,
		fallback: fallback,
		cost:     perNoteCost,
	}
}

func (s *noteGenService) Generate(ctx context.Context, req NoteGenRequest) (*NoteGenResult, error) {
	start := time.Now()
	raw, err := s.llm.GenerateJSON(ctx, noteSystemPrompt, buildNoteUserPrompt(req), "clinical_note", noteSchema())
	observability.GetMetrics().RecordProviderCall(ctx, "llm", "generate_note", err, time.Since(start))
	if err == nil {
		res, perr := parseNotePayload(raw)
		if perr == nil {
			res.Method = types.MethodPrimary
			res.Cost = s.cost
			return res, nil
		}
		err = perr
	}

	s.log.Warn("note generation falling back to rule-based",
		"model", s.llm.Model(), "error", err.Error())
	res, ferr := s.fallback.Generate(ctx, req)
	if ferr != nil {
		return nil, ferr
	}
	return res, nil
}

// noteSchema is the strict output contract for the model. All four sections
// are required even when empty.
func noteSchema() map[string]any {
	strArr := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"subjective", "objective", "assessment", "plan", "entities", "icd_codes"},
		"properties": map[string]any{
			"subjective": strArr,
			"objective":  strArr,
			"assessment": strArr,
			"plan": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"medication", "dosage", "frequency", "text"},
					"properties": map[string]any{
						"medication": map[string]any{"type": "string"},
						"dosage":     map[string]any{"type": "string"},
						"frequency":  map[string]any{"type": "string"},
						"text":       map[string]any{"type": "string"},
					},
				},
			},
			"entities": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"text", "category", "confidence"},
					"properties": map[string]any{
						"text":       map[string]any{"type": "string"},
						"category":   map[string]any{"type": "string", "enum": []string{"symptom", "medication", "diagnosis", "vital", "dosage"}},
						"confidence": map[string]any{"type": "number"},
					},
				},
			},
			"icd_codes": strArr,
		},
	}
}

type notePayload struct {
	Subjective []string `json:"subjective"`
	Objective  []string `json:"objective"`
	Assessment []string `json:"assessment"`
	Plan       []struct {
		Medication string `json:"medication"`
		Dosage     string `json:"dosage"`
		Frequency  string `json:"frequency"`
		Text       string `json:"text"`
	} `json:"plan"`
	Entities []struct {
		Text       string  `json:"text"`
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	} `json:"entities"`
	ICDCodes []string `json:"icd_codes"`
}

func parseNotePayload(raw map[string]any) (*NoteGenResult, error) {
	// sections must be present; a legitimately empty one (say, no objective
	// findings) is fine and the renderer backfills it
	for _, key := range []string{"subjective", "objective", "assessment", "plan"} {
		if _, ok := raw[key]; !ok {
			return nil, fmt.Errorf("model output missing %s section", key)
		}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encode model output: %w", err)
	}
	var p notePayload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("model output does not match note schema: %w", err)
	}

	note := &types.Note{
		Subjective: nonEmpty(p.Subjective),
		Objective:  nonEmpty(p.Objective),
		Assessment: nonEmpty(p.Assessment),
	}
	for _, pl := range p.Plan {
		if strings.TrimSpace(pl.Text) == "" && strings.TrimSpace(pl.Medication) == "" {
			continue
		}
		note.Plan = append(note.Plan, types.PlanItem{
			Medication: strings.TrimSpace(pl.Medication),
			Dosage:     strings.TrimSpace(pl.Dosage),
			Frequency:  strings.TrimSpace(pl.Frequency),
			Text:       strings.TrimSpace(pl.Text),
		})
	}
	note.Markdown = BuildNoteMarkdown(note)

	res := &NoteGenResult{Note: note, DerivedCodes: nonEmpty(p.ICDCodes)}
	for _, e := range p.Entities {
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		res.Entities = append(res.Entities, types.Entity{
			Text:       strings.TrimSpace(e.Text),
			Category:   e.Category,
			Confidence: e.Confidence,
			Source:     "llm",
		})
	}
	return res, nil
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// BuildNoteMarkdown renders the note in the editable markdown shape the
// review UI works with. Sections are normalized to one bullet per finding.
func BuildNoteMarkdown(n *types.Note) string {
	var b strings.Builder
	writeSection := func(title string, lines []string) {
		b.WriteString("## ")
		b.WriteString(title)
		b.WriteString("\n")
		b.WriteString(normalization.Normalize(strings.Join(lines, "\n")))
		b.WriteString("\n\n")
	}
	writeSection("Subjective", n.Subjective)
	writeSection("Objective", n.Objective)
	writeSection("Assessment", n.Assessment)

	planLines := make([]string, 0, len(n.Plan))
	for _, p := range n.Plan {
		planLines = append(planLines, p.String())
	}
	b.WriteString("## Plan\n")
	b.WriteString(normalization.Normalize(strings.Join(planLines, "\n")))
	b.WriteString("\n")
	return b.String()
}
