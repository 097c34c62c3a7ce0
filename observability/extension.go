package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/faktory/ext"
	"github.com/xraph/faktory/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobPushed    = (*MetricsExtension)(nil)
	_ ext.JobStarted   = (*MetricsExtension)(nil)
	_ ext.JobCompleted = (*MetricsExtension)(nil)
	_ ext.JobFailed    = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/faktory/observability"

// MetricsExtension records process-wide job counters.
//
// Instruments (Int64Counter, attribute jobtype):
//   - faktory.jobs.pushed
//   - faktory.jobs.started
//   - faktory.jobs.completed
//   - faktory.jobs.failed
type MetricsExtension struct {
	pushed    metric.Int64Counter
	started   metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
}

// NewMetricsExtension uses the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter uses the provided meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{job}"))
		return c
	}
	return &MetricsExtension{
		pushed:    counter("faktory.jobs.pushed", "Jobs accepted by the server"),
		started:   counter("faktory.jobs.started", "Jobs started by this process"),
		completed: counter("faktory.jobs.completed", "Jobs acknowledged by this process"),
		failed:    counter("faktory.jobs.failed", "Jobs failed by this process"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobPushed implements ext.JobPushed.
func (m *MetricsExtension) OnJobPushed(ctx context.Context, j *job.Job) error {
	m.pushed.Add(ctx, 1, byType(j))
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(ctx context.Context, j *job.Job) error {
	m.started.Add(ctx, 1, byType(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.completed.Add(ctx, 1, byType(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.failed.Add(ctx, 1, byType(j))
	return nil
}

func byType(j *job.Job) metric.AddOption {
	return metric.WithAttributes(attribute.String("jobtype", j.Type))
}
