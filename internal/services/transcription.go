package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/medscribe/medscribe-backend/internal/observability"
	"github.com/medscribe/medscribe-backend/internal/platform/apierr"
	"github.com/medscribe/medscribe-backend/internal/platform/logger"
	"github.com/medscribe/medscribe-backend/internal/types"
)

// TranscriptionRequest carries one consultation's audio through the provider
// chain.
type TranscriptionRequest struct {
	Audio       []byte
	Format      string
	Language    string
	DurationSec float64
}

// TranscriptionResult is the adapter's output: transcript plus the method and
// cost that actually produced it.
type TranscriptionResult struct {
	Text       string
	Confidence float64
	Method     string
	Provider   string
	Segments   []types.DiarizedSegment
	Cost       float64
}

// providerResult is what an individual provider returns; method and cost are
// assigned by the adapter.
type providerResult struct {
	Text       string
	Confidence float64
	Segments   []types.DiarizedSegment
}

// TranscriptionProvider is one backend in the chain. Transcribe performs a
// single attempt; retries live in the adapter.
type TranscriptionProvider interface {
	Name() string
	Supports(language string) bool
	Transcribe(ctx context.Context, req TranscriptionRequest) (*providerResult, error)
}

// TranscriptionService converts consultation audio to text, falling back to
// the next provider when the current one is exhausted or the budget refuses
// its cost.
type TranscriptionService interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResult, error)
}

type transcriptionStrategy struct {
	provider   TranscriptionProvider
	method     string
	attempts   int
	ratePerMin float64 // 0 means the provider is free and skips the budget gate
}

type transcriptionService struct {
	log        *logger.Logger
	strategies []transcriptionStrategy
	budget     CostBudget
	languages  map[string]struct{}
	backoff    time.Duration
}

// NewTranscriptionService wires the primary and fallback providers.
// ratePerMin applies to the primary only; the fallback runs on local compute.
func NewTranscriptionService(log *logger.Logger, primary, fallback TranscriptionProvider, budget CostBudget, languages []string, ratePerMin float64) TranscriptionService {
	langs := make(map[string]struct{}, len(languages))
	for _, l := range languages {
		langs[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}
	return &transcriptionService{
		log: log.With("service", "TranscriptionService"),
		strategies: []transcriptionStrategy{
			{provider: primary, method: types.MethodPrimary, attempts: 3, ratePerMin: ratePerMin},
			{provider: fallback, method: types.MethodFallback, attempts: 1},
		},
		budget:    budget,
		languages: langs,
		backoff:   500 * time.Millisecond,
	}
}

func (s *transcriptionService) Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResult, error) {
	lang := strings.ToLower(strings.TrimSpace(req.Language))
	if _, ok := s.languages[lang]; !ok {
		return nil, apierr.Validation(fmt.Errorf("unsupported language %q", req.Language))
	}
	req.Language = lang

	var lastErr error
	for _, st := range s.strategies {
		if !st.provider.Supports(lang) {
			lastErr = fmt.Errorf("provider %s does not support language %q", st.provider.Name(), lang)
			continue
		}

		estimate := 0.0
		if st.ratePerMin > 0 {
			estimate = (req.DurationSec / 60.0) * st.ratePerMin
			if err := s.budget.Reserve(ctx, estimate); err != nil {
				s.log.Warn("budget refused provider, trying next",
					"provider", st.provider.Name(), "estimate", estimate)
				lastErr = err
				continue
			}
		}

		res, err := s.attempt(ctx, st, req)
		if err != nil {
			if estimate > 0 {
				s.budget.Release(ctx, estimate)
			}
			lastErr = err
			continue
		}
		if estimate > 0 {
			s.budget.Commit(ctx, estimate, estimate)
		}
		return &TranscriptionResult{
			Text:       res.Text,
			Confidence: res.Confidence,
			Method:     st.method,
			Provider:   st.provider.Name(),
			Segments:   res.Segments,
			Cost:       estimate,
		}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no transcription provider available")
	}
	if apierr.IsCode(lastErr, apierr.CodeBudgetExceeded) {
		return nil, lastErr
	}
	return nil, apierr.ExternalService(fmt.Errorf("all transcription providers failed: %w", lastErr))
}

// attempt runs one strategy with bounded retries on transient failures.
func (s *transcriptionService) attempt(ctx context.Context, st transcriptionStrategy, req TranscriptionRequest) (*providerResult, error) {
	var lastErr error
	backoff := s.backoff
	for i := 0; i < st.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		start := time.Now()
		res, err := st.provider.Transcribe(ctx, req)
		observability.GetMetrics().RecordProviderCall(ctx, st.provider.Name(), "transcribe", err, time.Since(start))
		if err == nil {
			return res, nil
		}
		lastErr = err
		s.log.Warn("transcription attempt failed",
			"provider", st.provider.Name(), "attempt", i+1, "error", err.Error())
		if !isTransient(err) {
			break
		}
	}
	return nil, lastErr
}

// isTransient reports whether an error is worth retrying on the same
// provider. gRPC overload and timeout codes are; bad requests are not.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return true
		case codes.InvalidArgument, codes.PermissionDenied, codes.Unauthenticated, codes.NotFound:
			return false
		}
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "temporarily unavailable") ||
		strings.Contains(msg, "status 429") ||
		strings.Contains(msg, "status 5")
}
