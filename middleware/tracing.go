package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/faktory/job"
)

// tracerName is the instrumentation scope name for faktory tracing.
const tracerName = "github.com/xraph/faktory"

// Tracing wraps job execution in an OpenTelemetry span. With no global
// TracerProvider configured it is a pass-through.
//
// Span attributes: faktory.jid, faktory.jobtype, faktory.queue,
// faktory.bid and faktory.retry_count when the job has failed before.
type Tracing struct {
	tracer trace.Tracer
}

// NewTracing uses the global TracerProvider.
func NewTracing() *Tracing {
	return NewTracingWithTracer(otel.Tracer(tracerName))
}

// NewTracingWithTracer uses the provided tracer.
func NewTracingWithTracer(tracer trace.Tracer) *Tracing {
	return &Tracing{tracer: tracer}
}

func (t *Tracing) Perform(ctx context.Context, _ job.Performer, j *job.Job, next Handler) error {
	ctx, span := t.tracer.Start(ctx, "faktory.job.perform",
		trace.WithAttributes(jobAttributes(j)...),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	err := next(ctx)
	endSpan(span, err)
	return err
}

// PushTracing wraps PUSH in an OpenTelemetry span.
type PushTracing struct {
	tracer trace.Tracer
}

// NewPushTracing uses the global TracerProvider.
func NewPushTracing() *PushTracing {
	return NewPushTracingWithTracer(otel.Tracer(tracerName))
}

// NewPushTracingWithTracer uses the provided tracer.
func NewPushTracingWithTracer(tracer trace.Tracer) *PushTracing {
	return &PushTracing{tracer: tracer}
}

func (t *PushTracing) Push(ctx context.Context, j *job.Job, next PushFunc) (string, error) {
	ctx, span := t.tracer.Start(ctx, "faktory.job.push",
		trace.WithAttributes(jobAttributes(j)...),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	defer span.End()

	jid, err := next(ctx)
	endSpan(span, err)
	return jid, err
}

func jobAttributes(j *job.Job) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("faktory.jid", j.JID),
		attribute.String("faktory.jobtype", j.Type),
		attribute.String("faktory.queue", j.Queue),
	}
	if bid := j.BID(); bid != "" {
		attrs = append(attrs, attribute.String("faktory.bid", bid))
	}
	if j.Failure != nil {
		attrs = append(attrs, attribute.Int("faktory.retry_count", j.Failure.RetryCount))
	}
	return attrs
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
