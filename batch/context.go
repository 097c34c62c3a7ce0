package batch

import (
	"context"

	"github.com/xraph/faktory"
	"github.com/xraph/faktory/job"
)

type ctxKey struct{}

// WithBatch returns a context whose pushes join b.
func WithBatch(ctx context.Context, b *Batch) context.Context {
	return context.WithValue(ctx, ctxKey{}, b)
}

// FromContext returns the current batch, or nil.
func FromContext(ctx context.Context) *Batch {
	b, _ := ctx.Value(ctxKey{}).(*Batch)
	return b
}

// ForJob returns a handle to the batch of the job running in ctx, or nil
// if that job is not part of a batch. Call Jobs on it to add jobs.
func ForJob(ctx context.Context) (*Batch, error) {
	j := job.FromContext(ctx)
	if j == nil {
		return nil, faktory.ErrNoCurrentJob
	}
	bid := j.BID()
	if bid == "" {
		return nil, nil
	}
	return Open(bid), nil
}
