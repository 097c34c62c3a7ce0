package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/faktory/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job hooks
// ──────────────────────────────────────────────────

// JobPushed is called after the server accepts a job.
type JobPushed interface {
	OnJobPushed(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a Processor begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job succeeds.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called after a job's failure is reported to the server.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// ──────────────────────────────────────────────────
// Process hooks
// ──────────────────────────────────────────────────

// StartupHook runs on the Startup event.
type StartupHook interface {
	OnStartup(ctx context.Context) error
}

// QuietHook runs on the Quiet event.
type QuietHook interface {
	OnQuiet(ctx context.Context) error
}

// ShutdownHook runs on the Shutdown event.
type ShutdownHook interface {
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Lifecycle events and error handlers
// ──────────────────────────────────────────────────

// Event names a process lifecycle event.
type Event string

const (
	Startup  Event = "startup"
	Quiet    Event = "quiet"
	Shutdown Event = "shutdown"
)

// Callback runs on a lifecycle event.
type Callback func(ctx context.Context) error

// ErrorHandler receives errors that escape jobs, hooks and heartbeats,
// with context such as the jid or the event name.
type ErrorHandler func(ctx context.Context, err error, attrs ...slog.Attr)
