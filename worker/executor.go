// Package worker runs fetched jobs. A Manager keeps a fixed number of
// Processors alive; each Processor loops fetch, dispatch, acknowledge or
// fail until it is told to stop. The Executor resolves a job's type and
// runs it through the worker middleware chain.
package worker

import (
	"context"
	"log/slog"

	"github.com/xraph/faktory/ext"
	"github.com/xraph/faktory/job"
	"github.com/xraph/faktory/middleware"
)

// Reloader wraps each job execution, e.g. to reload code or scope
// per-job resources. It must call run.
type Reloader func(ctx context.Context, run middleware.Handler) error

// JobLogger wraps each job execution to log its outcome. It must call run.
type JobLogger func(ctx context.Context, j *job.Job, run middleware.Handler) error

// LogJobs returns a JobLogger that logs start, done and failure with the
// elapsed time.
func LogJobs(logger *slog.Logger) JobLogger {
	l := middleware.NewLogging(logger)
	return func(ctx context.Context, j *job.Job, run middleware.Handler) error {
		return l.Perform(ctx, nil, j, run)
	}
}

func passthrough(ctx context.Context, run middleware.Handler) error { return run(ctx) }

// Executor dispatches one job: registry lookup, instantiation, identity
// assignment, reloader, job logger, worker middleware and Perform.
type Executor struct {
	registry   *job.Registry
	chain      *middleware.WorkerChain
	extensions *ext.Registry
	reloader   Reloader
	jobLogger  JobLogger
	logger     *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithChain sets the worker middleware chain.
func WithChain(c *middleware.WorkerChain) ExecutorOption {
	return func(e *Executor) { e.chain = c }
}

// WithReloader sets the reloader hook.
func WithReloader(r Reloader) ExecutorOption {
	return func(e *Executor) { e.reloader = r }
}

// WithJobLogger sets the job logger hook.
func WithJobLogger(l JobLogger) ExecutorOption {
	return func(e *Executor) { e.jobLogger = l }
}

// WithExecutorExtensions sets the extension registry notified when a job
// starts.
func WithExecutorExtensions(r *ext.Registry) ExecutorOption {
	return func(e *Executor) { e.extensions = r }
}

// NewExecutor creates an Executor for the jobtypes in registry.
func NewExecutor(registry *job.Registry, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		chain:    middleware.NewWorkerChain(),
		reloader: passthrough,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.jobLogger == nil {
		e.jobLogger = LogJobs(logger)
	}
	if e.extensions == nil {
		e.extensions = ext.NewRegistry(logger)
	}
	return e
}

// Execute runs j to completion and returns its error. An unregistered
// jobtype yields a *job.UnknownTypeError. ctx carries j for the job body.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	ctx = job.WithJob(ctx, j)
	e.extensions.EmitJobStarted(ctx, j)

	return e.jobLogger(ctx, j, func(ctx context.Context) error {
		return e.reloader(ctx, func(ctx context.Context) error {
			factory, err := e.registry.Lookup(j.Type)
			if err != nil {
				return err
			}
			inst := factory()
			if idf, ok := inst.(job.Identifiable); ok {
				idf.SetIdentity(j.JID, j.BID())
			}
			return e.chain.Invoke(ctx, inst, j, func(ctx context.Context) error {
				return inst.Perform(ctx, j.Args...)
			})
		})
	})
}
