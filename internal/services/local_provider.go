package services

import (
	"context"
	"strings"

	"github.com/medscribe/medscribe-backend/internal/platform/envutil"
	"github.com/medscribe/medscribe-backend/internal/platform/localasr"
	"github.com/medscribe/medscribe-backend/internal/platform/logger"
)

// localASRProvider wraps the self-hosted whisper-style server as the
// no-cost fallback when the cloud recognizer is down or the budget says no.
type localASRProvider struct {
	log       *logger.Logger
	client    localasr.Client
	languages map[string]struct{}
}

func NewLocalASRProvider(log *logger.Logger, client localasr.Client) TranscriptionProvider {
	langs := make(map[string]struct{})
	for _, l := range envutil.StringSlice("LOCAL_ASR_LANGUAGES", []string{"ta", "te", "hi", "en"}) {
		langs[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}
	return &localASRProvider{
		log:       log.With("service", "LocalASRProvider"),
		client:    client,
		languages: langs,
	}
}

func (p *localASRProvider) Name() string { return "local_asr" }

func (p *localASRProvider) Supports(language string) bool {
	_, ok := p.languages[language]
	return ok
}

func (p *localASRProvider) Transcribe(ctx context.Context, req TranscriptionRequest) (*providerResult, error) {
	if len(req.Audio) == 0 {
		return &providerResult{Text: "", Confidence: 0}, nil
	}
	text, err := p.client.Transcribe(ctx, req.Audio, req.Format, req.Language)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	return &providerResult{
		Text:       text,
		Confidence: localConfidence(text),
	}, nil
}

// localConfidence is a rough heuristic: the local model emits no scores, so
// rate by output length, capped well below what the cloud recognizer reports.
func localConfidence(text string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0.1
	}
	c := 0.5 + 0.01*float64(words)
	if c > 0.75 {
		c = 0.75
	}
	return c
}
