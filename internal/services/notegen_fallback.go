package services

import (
	"context"
	"embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/medscribe/medscribe-backend/internal/platform/logger"
	"github.com/medscribe/medscribe-backend/internal/types"
)

//go:embed lexicon/*.yaml
var lexiconFS embed.FS

type lexiconEntry struct {
	Term    string `yaml:"term"`
	English string `yaml:"english"`
}

type lexicon struct {
	Language    string         `yaml:"language"`
	Symptoms    []lexiconEntry `yaml:"symptoms"`
	Medications []lexiconEntry `yaml:"medications"`
	Diagnoses   []lexiconEntry `yaml:"diagnoses"`
}

var (
	bpRe    = regexp.MustCompile(`(?i)(?:bp|blood pressure)[:\s]*(\d{2,3})\s*/\s*(\d{2,3})`)
	pulseRe = regexp.MustCompile(`(?i)(?:pulse|heart rate|hr)[:\s]*(\d{2,3})\b`)
	tempRe  = regexp.MustCompile(`(?i)(?:temp|temperature|fever of)[:\s]*(\d{2,3}(?:\.\d)?)\s*(?:°?\s*f|degrees?)?`)
	spo2Re  = regexp.MustCompile(`(?i)(?:spo2|oxygen|saturation)[:\s]*(\d{2,3})\s*%?`)

	dosageRe    = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(mg|ml|mcg|g)\b`)
	frequencyRe = regexp.MustCompile(`(?i)\b(od|bd|tds|tid|qid|sos|once daily|twice daily|three times|at night|morning and night)\b`)
)

// ruleBasedGenerator produces a deterministic note from dictionary lookup and
// vitals patterns. It never calls out anywhere, so it is the path of last
// resort when the model is unreachable or returns garbage.
type ruleBasedGenerator struct {
	log      *logger.Logger
	lexicons map[string]*lexicon
}

func NewRuleBasedGenerator(log *logger.Logger) (*ruleBasedGenerator, error) {
	entries, err := lexiconFS.ReadDir("lexicon")
	if err != nil {
		return nil, fmt.Errorf("read lexicon dir: %w", err)
	}
	lexicons := make(map[string]*lexicon, len(entries))
	for _, e := range entries {
		b, err := lexiconFS.ReadFile("lexicon/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read lexicon %s: %w", e.Name(), err)
		}
		var lx lexicon
		if err := yaml.Unmarshal(b, &lx); err != nil {
			return nil, fmt.Errorf("parse lexicon %s: %w", e.Name(), err)
		}
		if lx.Language == "" {
			return nil, fmt.Errorf("lexicon %s missing language", e.Name())
		}
		lexicons[lx.Language] = &lx
	}
	return &ruleBasedGenerator{
		log:      log.With("service", "RuleBasedGenerator"),
		lexicons: lexicons,
	}, nil
}

func (g *ruleBasedGenerator) Generate(_ context.Context, req NoteGenRequest) (*NoteGenResult, error) {
	transcript := req.Transcript
	lower := strings.ToLower(transcript)

	// scan the consultation language plus english; mixed-language dialogue
	// is the norm, not the exception
	var scan []*lexicon
	if lx, ok := g.lexicons[req.Language]; ok {
		scan = append(scan, lx)
	}
	if req.Language != "en" {
		if lx, ok := g.lexicons["en"]; ok {
			scan = append(scan, lx)
		}
	}

	found := map[string]types.Entity{}
	match := func(entries []lexiconEntry, category string) {
		for _, e := range entries {
			term := e.Term
			hay := transcript
			if isASCII(term) {
				term = strings.ToLower(term)
				hay = lower
			}
			if strings.Contains(hay, term) {
				key := category + ":" + e.English
				if _, seen := found[key]; !seen {
					found[key] = types.Entity{
						Text:       e.English,
						Category:   category,
						Confidence: 0.8,
						Source:     "rule_based",
					}
				}
			}
		}
	}
	for _, lx := range scan {
		match(lx.Symptoms, types.EntitySymptom)
		match(lx.Medications, types.EntityMedication)
		match(lx.Diagnoses, types.EntityDiagnosis)
	}

	entities := make([]types.Entity, 0, len(found))
	for _, e := range found {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Category != entities[j].Category {
			return entities[i].Category < entities[j].Category
		}
		return entities[i].Text < entities[j].Text
	})

	vitals := extractVitals(transcript)
	for _, v := range vitals {
		entities = append(entities, types.Entity{
			Text:       v,
			Category:   types.EntityVital,
			Confidence: 0.9,
			Source:     "rule_based",
		})
	}

	note := g.buildNote(entities, vitals, transcript)
	note.Markdown = BuildNoteMarkdown(note)

	return &NoteGenResult{
		Entities: entities,
		Note:     note,
		Method:   types.MethodFallback,
		Cost:     0,
	}, nil
}

func (g *ruleBasedGenerator) buildNote(entities []types.Entity, vitals []string, transcript string) *types.Note {
	note := &types.Note{}

	for _, e := range entities {
		if e.Category == types.EntitySymptom {
			note.Subjective = append(note.Subjective, "Reports "+e.Text)
		}
	}
	if len(note.Subjective) == 0 {
		note.Subjective = []string{"Chief complaints as discussed during consultation"}
	}

	note.Objective = append(note.Objective, vitals...)
	if len(note.Objective) == 0 {
		note.Objective = []string{"Examination findings not documented in consultation"}
	}

	for _, e := range entities {
		if e.Category == types.EntityDiagnosis {
			note.Assessment = append(note.Assessment, titleCase(e.Text))
		}
	}
	if len(note.Assessment) == 0 {
		note.Assessment = []string{"Clinical correlation required; no definitive diagnosis recorded"}
	}

	dosage := firstMatch(dosageRe, transcript)
	frequency := strings.ToUpper(firstMatch(frequencyRe, transcript))
	for _, e := range entities {
		if e.Category != types.EntityMedication {
			continue
		}
		item := types.PlanItem{
			Medication: titleCase(e.Text),
			Dosage:     dosage,
			Frequency:  frequency,
		}
		note.Plan = append(note.Plan, item)
	}
	note.Plan = append(note.Plan, types.PlanItem{
		Text: "Review after 3 days or earlier if symptoms worsen",
	})
	return note
}

func extractVitals(transcript string) []string {
	var out []string
	if m := bpRe.FindStringSubmatch(transcript); m != nil {
		out = append(out, fmt.Sprintf("BP: %s/%s mmHg", m[1], m[2]))
	}
	if m := pulseRe.FindStringSubmatch(transcript); m != nil {
		out = append(out, fmt.Sprintf("Pulse: %s/min", m[1]))
	}
	if m := tempRe.FindStringSubmatch(transcript); m != nil {
		out = append(out, fmt.Sprintf("Temperature: %s F", m[1]))
	}
	if m := spo2Re.FindStringSubmatch(transcript); m != nil {
		out = append(out, fmt.Sprintf("SpO2: %s%%", m[1]))
	}
	return out
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindString(s)
	return strings.TrimSpace(m)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}
