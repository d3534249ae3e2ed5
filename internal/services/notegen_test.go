package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/medscribe/medscribe-backend/internal/types"
)

type fakeLLM struct {
	out   map[string]any
	err   error
	calls int
}

func (f *fakeLLM) GenerateJSON(_ context.Context, _ string, _ string, _ string, _ map[string]any) (map[string]any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func (f *fakeLLM) Model() string { return "fake-model" }

func validLLMOutput() map[string]any {
	return map[string]any{
		"subjective": []any{"Fever for 2 days", "Headache"},
		"objective":  []any{"Temperature: 101 F"},
		"assessment": []any{"Viral fever"},
		"plan": []any{
			map[string]any{"medication": "Paracetamol", "dosage": "500mg", "frequency": "TID", "text": "Paracetamol 500mg three times a day"},
		},
		"entities": []any{
			map[string]any{"text": "fever", "category": "symptom", "confidence": 0.95},
		},
		"icd_codes": []any{"R50.9"},
	}
}

func newTestNoteGen(t *testing.T, client *fakeLLM) NoteGenerator {
	t.Helper()
	fallback, err := NewRuleBasedGenerator(newTestLogger(t))
	if err != nil {
		t.Fatalf("init rule generator: %v", err)
	}
	return NewNoteGenService(newTestLogger(t), client, fallback, 0.15)
}

func TestGenerateNotePrimary(t *testing.T) {
	client := &fakeLLM{out: validLLMOutput()}
	svc := newTestNoteGen(t, client)

	res, err := svc.Generate(context.Background(), NoteGenRequest{Transcript: "fever and headache", Language: "en"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Method != types.MethodPrimary {
		t.Fatalf("method = %q, want primary", res.Method)
	}
	if res.Cost != 0.15 {
		t.Fatalf("cost = %v, want 0.15", res.Cost)
	}
	if len(res.Note.Subjective) != 2 {
		t.Fatalf("subjective length = %d, want 2", len(res.Note.Subjective))
	}
	if len(res.Note.Plan) != 1 || res.Note.Plan[0].Medication != "Paracetamol" {
		t.Fatalf("unexpected plan: %+v", res.Note.Plan)
	}
	if len(res.DerivedCodes) != 1 || res.DerivedCodes[0] != "R50.9" {
		t.Fatalf("unexpected codes: %v", res.DerivedCodes)
	}
	if res.Note.Markdown == "" || !strings.Contains(res.Note.Markdown, "## Subjective") {
		t.Fatalf("markdown not built: %q", res.Note.Markdown)
	}
	if len(res.Entities) != 1 || res.Entities[0].Source != "llm" {
		t.Fatalf("unexpected entities: %+v", res.Entities)
	}
}

func TestGenerateNoteFallsBackOnError(t *testing.T) {
	client := &fakeLLM{err: errors.New("status 500")}
	svc := newTestNoteGen(t, client)

	res, err := svc.Generate(context.Background(), NoteGenRequest{
		Transcript: "patient has fever and headache, prescribed paracetamol 500 mg TID",
		Language:   "en",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Method != types.MethodFallback {
		t.Fatalf("method = %q, want fallback", res.Method)
	}
	if res.Cost != 0 {
		t.Fatalf("fallback cost = %v, want 0", res.Cost)
	}
}

func TestGenerateNoteFallsBackOnBadStructure(t *testing.T) {
	out := validLLMOutput()
	delete(out, "subjective")
	client := &fakeLLM{out: out}
	svc := newTestNoteGen(t, client)

	res, err := svc.Generate(context.Background(), NoteGenRequest{Transcript: "fever", Language: "en"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Method != types.MethodFallback {
		t.Fatalf("method = %q, want fallback when model output is invalid", res.Method)
	}
}

func TestGenerateNoteKeepsPrimaryWithEmptySections(t *testing.T) {
	out := validLLMOutput()
	out["objective"] = []any{}
	out["plan"] = []any{}
	client := &fakeLLM{out: out}
	svc := newTestNoteGen(t, client)

	res, err := svc.Generate(context.Background(), NoteGenRequest{Transcript: "fever", Language: "en"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Method != types.MethodPrimary {
		t.Fatalf("method = %q, want primary; empty sections are legitimate output", res.Method)
	}
	if len(res.Note.Objective) != 0 || len(res.Note.Plan) != 0 {
		t.Fatalf("sections should stay empty, got objective=%v plan=%v", res.Note.Objective, res.Note.Plan)
	}
	if !strings.Contains(res.Note.Markdown, "## Objective") {
		t.Fatalf("markdown must still carry all section headers: %q", res.Note.Markdown)
	}
}

func TestRuleBasedTamilLexicon(t *testing.T) {
	gen, err := NewRuleBasedGenerator(newTestLogger(t))
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	res, err := gen.Generate(context.Background(), NoteGenRequest{
		Transcript: "நோயாளிக்கு காய்ச்சல் மற்றும் தலைவலி உள்ளது. பாராசிட்டமால் 500 mg BD.",
		Language:   "ta",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	byCategory := map[string][]string{}
	for _, e := range res.Entities {
		byCategory[e.Category] = append(byCategory[e.Category], e.Text)
	}
	if want := []string{"fever", "headache"}; len(byCategory[types.EntitySymptom]) != 2 {
		t.Fatalf("symptoms = %v, want %v", byCategory[types.EntitySymptom], want)
	}
	if len(byCategory[types.EntityMedication]) != 1 || byCategory[types.EntityMedication][0] != "paracetamol" {
		t.Fatalf("medications = %v, want [paracetamol]", byCategory[types.EntityMedication])
	}

	foundReport := false
	for _, s := range res.Note.Subjective {
		if strings.Contains(s, "fever") {
			foundReport = true
		}
	}
	if !foundReport {
		t.Fatalf("subjective %v missing fever finding", res.Note.Subjective)
	}

	var med *types.PlanItem
	for i := range res.Note.Plan {
		if res.Note.Plan[i].Medication != "" {
			med = &res.Note.Plan[i]
		}
	}
	if med == nil {
		t.Fatalf("plan %v has no medication item", res.Note.Plan)
	}
	if med.Dosage != "500 mg" || med.Frequency != "BD" {
		t.Fatalf("medication item = %+v, want 500 mg BD", med)
	}
}

func TestRuleBasedVitals(t *testing.T) {
	gen, err := NewRuleBasedGenerator(newTestLogger(t))
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	res, err := gen.Generate(context.Background(), NoteGenRequest{
		Transcript: "BP 130/85, pulse 88, temperature 101.2 F, SpO2 97%",
		Language:   "en",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	want := []string{"BP: 130/85 mmHg", "Pulse: 88/min", "Temperature: 101.2 F", "SpO2: 97%"}
	if len(res.Note.Objective) != len(want) {
		t.Fatalf("objective = %v, want %v", res.Note.Objective, want)
	}
	for i, w := range want {
		if res.Note.Objective[i] != w {
			t.Fatalf("objective[%d] = %q, want %q", i, res.Note.Objective[i], w)
		}
	}
}

func TestRuleBasedAlwaysFourSections(t *testing.T) {
	gen, err := NewRuleBasedGenerator(newTestLogger(t))
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	res, err := gen.Generate(context.Background(), NoteGenRequest{Transcript: "nothing clinical here", Language: "en"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	n := res.Note
	if len(n.Subjective) == 0 || len(n.Objective) == 0 || len(n.Assessment) == 0 || len(n.Plan) == 0 {
		t.Fatalf("all four sections must be populated, got %+v", n)
	}
}

func TestGenerateDeterministicFallback(t *testing.T) {
	gen, err := NewRuleBasedGenerator(newTestLogger(t))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	req := NoteGenRequest{
		Transcript: "fever headache cough paracetamol cetirizine BP 120/80",
		Language:   "en",
	}
	a, err := gen.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := gen.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a.Note.Markdown != b.Note.Markdown {
		t.Fatal("fallback output must be deterministic")
	}
	if len(a.Entities) != len(b.Entities) {
		t.Fatal("entity output must be deterministic")
	}
	for i := range a.Entities {
		if a.Entities[i] != b.Entities[i] {
			t.Fatalf("entity order differs at %d: %+v vs %+v", i, a.Entities[i], b.Entities[i])
		}
	}
}
