package middleware

import (
	"context"

	"github.com/xraph/faktory/job"
)

// Handler continues a worker chain; the terminal Handler runs the job.
type Handler func(ctx context.Context) error

// PushFunc continues a client chain; the terminal PushFunc sends PUSH.
type PushFunc func(ctx context.Context) (string, error)

// WorkerInterceptor wraps job execution. inst is the Performer about to
// run and j is the fetched job.
type WorkerInterceptor interface {
	Perform(ctx context.Context, inst job.Performer, j *job.Job, next Handler) error
}

// ClientInterceptor wraps a push. It may mutate j before calling next.
type ClientInterceptor interface {
	Push(ctx context.Context, j *job.Job, next PushFunc) (string, error)
}

// WorkerChain is the worker-lane chain.
type WorkerChain struct {
	Chain[WorkerInterceptor]
}

// NewWorkerChain creates an empty worker chain.
func NewWorkerChain() *WorkerChain { return &WorkerChain{} }

// Invoke runs inst through every interceptor, then terminal.
func (c *WorkerChain) Invoke(ctx context.Context, inst job.Performer, j *job.Job, terminal Handler) error {
	ics := c.Retrieve()
	h := terminal
	for i := len(ics) - 1; i >= 0; i-- {
		ic, next := ics[i], h
		h = func(ctx context.Context) error {
			return ic.Perform(ctx, inst, j, next)
		}
	}
	return h(ctx)
}

// ClientChain is the client-lane chain.
type ClientChain struct {
	Chain[ClientInterceptor]
}

// NewClientChain creates an empty client chain.
func NewClientChain() *ClientChain { return &ClientChain{} }

// Invoke runs j through every interceptor, then terminal.
func (c *ClientChain) Invoke(ctx context.Context, j *job.Job, terminal PushFunc) (string, error) {
	ics := c.Retrieve()
	h := terminal
	for i := len(ics) - 1; i >= 0; i-- {
		ic, next := ics[i], h
		h = func(ctx context.Context) (string, error) {
			return ic.Push(ctx, j, next)
		}
	}
	return h(ctx)
}
