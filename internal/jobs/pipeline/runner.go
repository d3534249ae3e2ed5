package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/medscribe/medscribe-backend/internal/observability"
	"github.com/medscribe/medscribe-backend/internal/platform/logger"
)

// Runner executes consultation pipelines in the background with bounded
// concurrency. Every dispatched consultation reaches a terminal state even if
// its pipeline panics.
type Runner struct {
	log     *logger.Logger
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	timeout time.Duration

	run  func(ctx context.Context, id uuid.UUID)
	fail func(ctx context.Context, id uuid.UUID, stage string, cause error)
}

func NewRunner(
	log *logger.Logger,
	concurrency int,
	run func(ctx context.Context, id uuid.UUID),
	fail func(ctx context.Context, id uuid.UUID, stage string, cause error),
) *Runner {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Runner{
		log:     log.With("service", "PipelineRunner"),
		sem:     semaphore.NewWeighted(int64(concurrency)),
		timeout: 15 * time.Minute,
		run:     run,
		fail:    fail,
	}
}

// Dispatch schedules one consultation and returns immediately. The request
// context is deliberately not propagated; processing outlives the upload
// request.
func (r *Runner) Dispatch(id uuid.UUID) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.sem.Acquire(ctx, 1); err != nil {
			r.log.Error("pipeline slot acquire failed", "consultation_id", id.String(), "error", err.Error())
			r.fail(ctx, id, "scheduling", err)
			return
		}
		defer r.sem.Release(1)

		ctx, span := observability.Tracer("pipeline").Start(ctx, "consultation.pipeline")
		span.SetAttributes(attribute.String("consultation.id", id.String()))
		defer span.End()

		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("pipeline panicked", "consultation_id", id.String(), "panic", fmt.Sprint(rec))
				// fresh context: the panic may have burned the deadline
				fctx, fcancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer fcancel()
				r.fail(fctx, id, "pipeline", fmt.Errorf("panic: %v", rec))
			}
		}()

		r.run(ctx, id)
	}()
}

// Wait blocks until all dispatched pipelines finish. Called on shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}
