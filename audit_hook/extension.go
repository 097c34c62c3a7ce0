package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/faktory/ext"
	"github.com/xraph/faktory/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*Extension)(nil)
	_ ext.JobPushed    = (*Extension)(nil)
	_ ext.JobStarted   = (*Extension)(nil)
	_ ext.JobCompleted = (*Extension)(nil)
	_ ext.JobFailed    = (*Extension)(nil)
	_ ext.StartupHook  = (*Extension)(nil)
	_ ext.QuietHook    = (*Extension)(nil)
	_ ext.ShutdownHook = (*Extension)(nil)
)

// Recorder is the interface audit backends implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit trail entry.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	identity string
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobPushed implements ext.JobPushed.
func (e *Extension) OnJobPushed(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobPushed, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.JID, CategoryJob, nil,
		"jobtype", j.Type,
		"queue", j.Queue,
		"at", j.At,
	)
}

// OnJobStarted implements ext.JobStarted.
func (e *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobStarted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.JID, CategoryJob, nil,
		"jobtype", j.Type,
		"queue", j.Queue,
	)
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.JID, CategoryJob, nil,
		"jobtype", j.Type,
		"queue", j.Queue,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	kv := []any{"jobtype", j.Type, "queue", j.Queue}
	if j.Failure != nil {
		kv = append(kv, "retry_count", j.Failure.RetryCount)
	}
	if j.Retry != nil {
		kv = append(kv, "retry", *j.Retry)
	}
	return e.record(ctx, ActionJobFailed, SeverityCritical, OutcomeFailure,
		ResourceJob, j.JID, CategoryJob, jobErr, kv...)
}

// ── Process lifecycle hooks ─────────────────────────

// OnStartup implements ext.StartupHook.
func (e *Extension) OnStartup(ctx context.Context) error {
	return e.record(ctx, ActionProcessStartup, SeverityInfo, OutcomeSuccess,
		ResourceProcess, e.identity, CategoryProcess, nil)
}

// OnQuiet implements ext.QuietHook.
func (e *Extension) OnQuiet(ctx context.Context) error {
	return e.record(ctx, ActionProcessQuiet, SeverityWarning, OutcomeSuccess,
		ResourceProcess, e.identity, CategoryProcess, nil)
}

// OnShutdown implements ext.ShutdownHook.
func (e *Extension) OnShutdown(ctx context.Context) error {
	return e.record(ctx, ActionProcessShutdown, SeverityWarning, OutcomeSuccess,
		ResourceProcess, e.identity, CategoryProcess, nil)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// kvPairs are added to Metadata; empty string values are skipped.
// Recorder errors are logged, never returned, so a broken audit backend
// cannot fail a job.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		if s, ok := kvPairs[i+1].(string); ok && s == "" {
			continue
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.WarnContext(ctx, "audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
