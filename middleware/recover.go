package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/xraph/faktory/job"
)

// PanicError is a recovered panic with the stack that produced it.
type PanicError struct {
	Value any
	Stack []string
}

// NewPanicError captures the current goroutine's stack. Call it from the
// deferred function that recovered v.
func NewPanicError(v any) *PanicError {
	return &PanicError{
		Value: v,
		Stack: strings.Split(strings.TrimSpace(string(debug.Stack())), "\n"),
	}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes a panicked error value.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Backtrace returns the captured stack lines.
func (e *PanicError) Backtrace() []string { return e.Stack }

// Recover converts panics below it in the chain into a *PanicError.
type Recover struct {
	logger *slog.Logger
}

// NewRecover creates a Recover interceptor.
func NewRecover(logger *slog.Logger) *Recover {
	return &Recover{logger: logger}
}

func (r *Recover) Perform(ctx context.Context, _ job.Performer, j *job.Job, next Handler) (retErr error) {
	defer func() {
		if v := recover(); v != nil {
			perr := NewPanicError(v)
			r.logger.ErrorContext(ctx, "job panicked",
				slog.String("jid", j.JID),
				slog.String("jobtype", j.Type),
				slog.Any("panic", v),
			)
			retErr = perr
		}
	}()
	return next(ctx)
}
