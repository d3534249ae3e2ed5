package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records provider call outcomes and accumulated external-call cost.
// Instruments come from the global meter provider, so this is a no-op unless
// a metrics SDK is installed.
type Metrics struct {
	providerCalls   metric.Int64Counter
	providerLatency metric.Float64Histogram
	costTotal       metric.Float64Counter
	pipelineRuns    metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("medscribe")
		m := &Metrics{}
		m.providerCalls, _ = meter.Int64Counter(
			"medscribe_provider_calls_total",
			metric.WithDescription("External provider calls by provider and outcome"),
		)
		m.providerLatency, _ = meter.Float64Histogram(
			"medscribe_provider_latency_seconds",
			metric.WithDescription("External provider call latency"),
		)
		m.costTotal, _ = meter.Float64Counter(
			"medscribe_cost_total",
			metric.WithDescription("Accumulated external-call cost"),
		)
		m.pipelineRuns, _ = meter.Int64Counter(
			"medscribe_pipeline_runs_total",
			metric.WithDescription("Consultation pipeline runs by terminal state"),
		)
		metricsInst = m
	})
	return metricsInst
}

func (m *Metrics) RecordProviderCall(ctx context.Context, provider string, method string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	)
	m.providerCalls.Add(ctx, 1, attrs)
	m.providerLatency.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *Metrics) RecordCost(ctx context.Context, provider string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.costTotal.Add(ctx, amount, metric.WithAttributes(attribute.String("provider", provider)))
}

func (m *Metrics) RecordPipelineRun(ctx context.Context, terminal string) {
	if m == nil {
		return
	}
	m.pipelineRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("terminal", terminal)))
}
