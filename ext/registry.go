package ext

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/xraph/faktory/job"
)

type jobPushedEntry struct {
	name string
	hook JobPushed
}

type jobStartedEntry struct {
	name string
	hook JobStarted
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type callbackEntry struct {
	name string
	fn   Callback
}

// Registry holds extensions, lifecycle callbacks and error handlers.
// It type-caches extensions at registration time so emit calls iterate
// only over extensions that implement the relevant hook. It is safe for
// concurrent use.
type Registry struct {
	logger *slog.Logger

	mu            sync.RWMutex
	extensions    []Extension
	jobPushed     []jobPushedEntry
	jobStarted    []jobStartedEntry
	jobCompleted  []jobCompletedEntry
	jobFailed     []jobFailedEntry
	callbacks     map[Event][]callbackEntry
	errorHandlers []ErrorHandler
}

// NewRegistry creates a registry whose first error handler logs to logger.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{
		logger:    logger,
		callbacks: make(map[Event][]callbackEntry),
	}
	r.errorHandlers = []ErrorHandler{r.logError}
	return r
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobPushed); ok {
		r.jobPushed = append(r.jobPushed, jobPushedEntry{name, h})
	}
	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, jobStartedEntry{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, h})
	}
	if h, ok := e.(StartupHook); ok {
		r.callbacks[Startup] = append(r.callbacks[Startup], callbackEntry{name, h.OnStartup})
	}
	if h, ok := e.(QuietHook); ok {
		r.callbacks[Quiet] = append(r.callbacks[Quiet], callbackEntry{name, h.OnQuiet})
	}
	if h, ok := e.(ShutdownHook); ok {
		r.callbacks[Shutdown] = append(r.callbacks[Shutdown], callbackEntry{name, h.OnShutdown})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.extensions)
}

// ──────────────────────────────────────────────────
// Lifecycle events
// ──────────────────────────────────────────────────

// On registers fn for event.
func (r *Registry) On(event Event, fn Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[event] = append(r.callbacks[event], callbackEntry{name: string(event), fn: fn})
}

// Fire runs the callbacks registered for event and forgets them, so each
// callback runs at most once. Quiet and Shutdown run in reverse
// registration order. Errors and panics are reported to the error
// handlers and do not stop later callbacks.
func (r *Registry) Fire(ctx context.Context, event Event) {
	r.mu.Lock()
	entries := r.callbacks[event]
	delete(r.callbacks, event)
	r.mu.Unlock()

	if event != Startup {
		slices.Reverse(entries)
	}
	for _, e := range entries {
		if err := r.runCallback(ctx, e); err != nil {
			r.HandleError(ctx, err,
				slog.String("event", string(event)),
				slog.String("hook", e.name),
			)
		}
	}
}

func (r *Registry) runCallback(ctx context.Context, e callbackEntry) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic in %s hook: %v", e.name, v)
		}
	}()
	return e.fn(ctx)
}

// ──────────────────────────────────────────────────
// Error handlers
// ──────────────────────────────────────────────────

// OnError adds an error handler after the existing ones.
func (r *Registry) OnError(h ErrorHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorHandlers = append(r.errorHandlers, h)
}

// HandleError passes err to every error handler. A handler that panics is
// logged and skipped.
func (r *Registry) HandleError(ctx context.Context, err error, attrs ...slog.Attr) {
	r.mu.RLock()
	handlers := slices.Clone(r.errorHandlers)
	r.mu.RUnlock()

	for _, h := range handlers {
		r.safeHandle(ctx, h, err, attrs)
	}
}

func (r *Registry) safeHandle(ctx context.Context, h ErrorHandler, err error, attrs []slog.Attr) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.ErrorContext(ctx, "error handler panicked",
				slog.Any("panic", v),
				slog.String("error", err.Error()),
			)
		}
	}()
	h(ctx, err, attrs...)
}

func (r *Registry) logError(ctx context.Context, err error, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)+1)
	args = append(args, slog.String("error", err.Error()))
	for _, a := range attrs {
		args = append(args, a)
	}
	r.logger.ErrorContext(ctx, "faktory error", args...)
}

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobPushed notifies all extensions that implement JobPushed.
func (r *Registry) EmitJobPushed(ctx context.Context, j *job.Job) {
	r.mu.RLock()
	entries := r.jobPushed
	r.mu.RUnlock()
	for _, e := range entries {
		r.callHook("OnJobPushed", e.name, func() error { return e.hook.OnJobPushed(ctx, j) })
	}
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	r.mu.RLock()
	entries := r.jobStarted
	r.mu.RUnlock()
	for _, e := range entries {
		r.callHook("OnJobStarted", e.name, func() error { return e.hook.OnJobStarted(ctx, j) })
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	r.mu.RLock()
	entries := r.jobCompleted
	r.mu.RUnlock()
	for _, e := range entries {
		r.callHook("OnJobCompleted", e.name, func() error { return e.hook.OnJobCompleted(ctx, j, elapsed) })
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	r.mu.RLock()
	entries := r.jobFailed
	r.mu.RUnlock()
	for _, e := range entries {
		r.callHook("OnJobFailed", e.name, func() error { return e.hook.OnJobFailed(ctx, j, jobErr) })
	}
}

// callHook runs one job hook. A returned error or a panic is logged and
// does not reach the caller.
func (r *Registry) callHook(hook, extName string, fn func() error) {
	defer func() {
		if v := recover(); v != nil {
			r.logHookError(hook, extName, fmt.Errorf("panic: %v", v))
		}
	}()
	if err := fn(); err != nil {
		r.logHookError(hook, extName, err)
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
