package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/faktory/job"
)

// Logging logs job start and completion.
type Logging struct {
	logger *slog.Logger
}

// NewLogging creates a Logging interceptor.
func NewLogging(logger *slog.Logger) *Logging {
	return &Logging{logger: logger}
}

func (l *Logging) Perform(ctx context.Context, _ job.Performer, j *job.Job, next Handler) error {
	attrs := []any{
		slog.String("jid", j.JID),
		slog.String("jobtype", j.Type),
		slog.String("queue", j.Queue),
	}
	l.logger.InfoContext(ctx, "job started", attrs...)

	start := time.Now()
	err := next(ctx)
	attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

	if err != nil {
		l.logger.ErrorContext(ctx, "job failed", append(attrs, slog.String("error", err.Error()))...)
	} else {
		l.logger.InfoContext(ctx, "job done", attrs...)
	}

	return err
}
