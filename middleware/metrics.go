package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/faktory/job"
)

// meterName is the instrumentation scope name for faktory metrics.
const meterName = "github.com/xraph/faktory"

// Metrics records per-job execution metrics.
//
// Instruments:
//   - faktory.job.duration (Float64Histogram): execution time in seconds,
//     with attributes: jobtype, queue, status ("ok" or "error")
//   - faktory.job.executions (Int64Counter): total executions,
//     with attributes: jobtype, queue, status ("ok" or "error")
type Metrics struct {
	duration   metric.Float64Histogram
	executions metric.Int64Counter
}

// NewMetrics uses the global MeterProvider.
func NewMetrics() *Metrics {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter uses the provided meter. Instruments are created
// once; the chain factory should return this shared value.
func NewMetricsWithMeter(meter metric.Meter) *Metrics {
	duration, dErr := meter.Float64Histogram(
		"faktory.job.duration",
		metric.WithDescription("Duration of job execution in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	executions, eErr := meter.Int64Counter(
		"faktory.job.executions",
		metric.WithDescription("Total number of job executions"),
		metric.WithUnit("{execution}"),
	)
	_ = eErr // noop fallback guaranteed by OTel API contract

	return &Metrics{duration: duration, executions: executions}
}

func (m *Metrics) Perform(ctx context.Context, _ job.Performer, j *job.Job, next Handler) error {
	start := time.Now()
	err := next(ctx)
	elapsed := time.Since(start).Seconds()

	status := "ok"
	if err != nil {
		status = "error"
	}

	attrs := metric.WithAttributes(
		attribute.String("jobtype", j.Type),
		attribute.String("queue", j.Queue),
		attribute.String("status", status),
	)

	m.duration.Record(ctx, elapsed, attrs)
	m.executions.Add(ctx, 1, attrs)

	return err
}
