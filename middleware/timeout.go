package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/faktory/job"
)

// Timeout cancels the job context when the job's reserve_for window
// elapses, since the server requeues the job at that point anyway.
type Timeout struct {
	logger *slog.Logger
}

// NewTimeout creates a Timeout interceptor.
func NewTimeout(logger *slog.Logger) *Timeout {
	return &Timeout{logger: logger}
}

func (t *Timeout) Perform(ctx context.Context, _ job.Performer, j *job.Job, next Handler) error {
	if j.ReserveFor > 0 {
		d := time.Duration(j.ReserveFor) * time.Second
		t.logger.DebugContext(ctx, "job deadline set",
			slog.String("jid", j.JID),
			slog.Duration("reserve_for", d),
		)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return next(ctx)
}
