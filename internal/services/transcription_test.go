package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medscribe/medscribe-backend/internal/platform/apierr"
	"github.com/medscribe/medscribe-backend/internal/types"
)

type fakeProvider struct {
	name     string
	langs    map[string]bool
	calls    int
	failWith error
	failN    int // fail the first N calls
	result   providerResult
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Supports(language string) bool {
	if f.langs == nil {
		return true
	}
	return f.langs[language]
}

func (f *fakeProvider) Transcribe(_ context.Context, _ TranscriptionRequest) (*providerResult, error) {
	f.calls++
	if f.failWith != nil && (f.failN == 0 || f.calls <= f.failN) {
		return nil, f.failWith
	}
	r := f.result
	return &r, nil
}

func newTestTranscription(t *testing.T, primary, fallback TranscriptionProvider, budgetCap float64) TranscriptionService {
	t.Helper()
	budget := NewMonthlyCostBudget(newTestLogger(t), budgetCap, 0)
	svc := NewTranscriptionService(newTestLogger(t), primary, fallback, budget, []string{"ta", "te", "hi", "en"}, 0.50)
	svc.(*transcriptionService).backoff = time.Millisecond
	return svc
}

func taRequest() TranscriptionRequest {
	return TranscriptionRequest{
		Audio:       []byte("fake-audio"),
		Format:      "mp3",
		Language:    "ta",
		DurationSec: 120,
	}
}

func TestTranscribePrimarySucceeds(t *testing.T) {
	primary := &fakeProvider{name: "gcp_speech", result: providerResult{Text: "hello", Confidence: 0.92}}
	fallback := &fakeProvider{name: "local_asr"}
	svc := newTestTranscription(t, primary, fallback, 1000)

	res, err := svc.Transcribe(context.Background(), taRequest())
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Method != types.MethodPrimary {
		t.Fatalf("method = %q, want primary", res.Method)
	}
	if res.Cost != 1.0 {
		t.Fatalf("cost = %v, want 1.0 (2 min at 0.50)", res.Cost)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback called %d times, want 0", fallback.calls)
	}
}

func TestTranscribeFallsBackAfterRetries(t *testing.T) {
	primary := &fakeProvider{name: "gcp_speech", failWith: errors.New("connection refused")}
	fallback := &fakeProvider{name: "local_asr", result: providerResult{Text: "fallback text", Confidence: 0.6}}
	svc := newTestTranscription(t, primary, fallback, 1000)

	res, err := svc.Transcribe(context.Background(), taRequest())
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if primary.calls != 3 {
		t.Fatalf("primary called %d times, want 3", primary.calls)
	}
	if fallback.calls != 1 {
		t.Fatalf("fallback called %d times, want exactly 1", fallback.calls)
	}
	if res.Method != types.MethodFallback {
		t.Fatalf("method = %q, want fallback", res.Method)
	}
	if res.Cost != 0 {
		t.Fatalf("fallback cost = %v, want 0", res.Cost)
	}
}

func TestTranscribeNonTransientSkipsRetries(t *testing.T) {
	primary := &fakeProvider{name: "gcp_speech", failWith: errors.New("bad encoding in request")}
	fallback := &fakeProvider{name: "local_asr", result: providerResult{Text: "ok"}}
	svc := newTestTranscription(t, primary, fallback, 1000)

	if _, err := svc.Transcribe(context.Background(), taRequest()); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if primary.calls != 1 {
		t.Fatalf("primary called %d times, want 1 for non-transient failure", primary.calls)
	}
}

func TestTranscribeBudgetExceededUsesFallback(t *testing.T) {
	primary := &fakeProvider{name: "gcp_speech", result: providerResult{Text: "pricey"}}
	fallback := &fakeProvider{name: "local_asr", result: providerResult{Text: "cheap", Confidence: 0.6}}
	// cap below the 1.0 estimate for a 2 minute recording
	svc := newTestTranscription(t, primary, fallback, 0.5)

	res, err := svc.Transcribe(context.Background(), taRequest())
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if primary.calls != 0 {
		t.Fatalf("primary called %d times, want 0 when budget refuses", primary.calls)
	}
	if res.Method != types.MethodFallback {
		t.Fatalf("method = %q, want fallback", res.Method)
	}
}

func TestTranscribeBudgetReleasedOnFailure(t *testing.T) {
	primary := &fakeProvider{name: "gcp_speech", failWith: errors.New("connection refused")}
	fallback := &fakeProvider{name: "local_asr", result: providerResult{Text: "ok"}}
	budget := NewMonthlyCostBudget(newTestLogger(t), 1000, 0)
	svc := NewTranscriptionService(newTestLogger(t), primary, fallback, budget, []string{"ta"}, 0.50)
	svc.(*transcriptionService).backoff = time.Millisecond

	if _, err := svc.Transcribe(context.Background(), taRequest()); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got := budget.Remaining(); got != 1000 {
		t.Fatalf("remaining = %v, want full budget back after primary failure", got)
	}
}

func TestTranscribeUnsupportedLanguage(t *testing.T) {
	primary := &fakeProvider{name: "gcp_speech"}
	fallback := &fakeProvider{name: "local_asr"}
	svc := newTestTranscription(t, primary, fallback, 1000)

	req := taRequest()
	req.Language = "fr"
	_, err := svc.Transcribe(context.Background(), req)
	if err == nil {
		t.Fatal("expected error for unsupported language")
	}
	if !apierr.IsCode(err, apierr.CodeValidation) {
		t.Fatalf("expected validation_failed, got %v", err)
	}
	if primary.calls != 0 || fallback.calls != 0 {
		t.Fatal("no provider should be called for an unsupported language")
	}
}

func TestTranscribeAllProvidersFail(t *testing.T) {
	primary := &fakeProvider{name: "gcp_speech", failWith: errors.New("connection refused")}
	fallback := &fakeProvider{name: "local_asr", failWith: errors.New("local server down")}
	svc := newTestTranscription(t, primary, fallback, 1000)

	_, err := svc.Transcribe(context.Background(), taRequest())
	if err == nil {
		t.Fatal("expected error when every provider fails")
	}
	if !apierr.IsCode(err, apierr.CodeExternalService) {
		t.Fatalf("expected external_service, got %v", err)
	}
}
