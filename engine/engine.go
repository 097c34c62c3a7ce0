package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/faktory"
	"github.com/xraph/faktory/backoff"
	"github.com/xraph/faktory/batch"
	"github.com/xraph/faktory/client"
	"github.com/xraph/faktory/ext"
	"github.com/xraph/faktory/fetch"
	"github.com/xraph/faktory/id"
	"github.com/xraph/faktory/job"
	"github.com/xraph/faktory/launcher"
	mw "github.com/xraph/faktory/middleware"
	"github.com/xraph/faktory/observability"
	"github.com/xraph/faktory/queue"
	"github.com/xraph/faktory/worker"
)

// instrumentationName is the OpenTelemetry scope used by the engine.
const instrumentationName = "github.com/xraph/faktory"

// ErrAlreadyRunning is returned by Run when the engine is already running.
var ErrAlreadyRunning = errors.New("faktory: engine is already running")

// Engine is a Faktory application context.
type Engine struct {
	cfg    faktory.Config
	logger *slog.Logger
	wid    string

	pool        *client.Pool
	registry    *job.Registry
	clientChain *mw.ClientChain
	workerChain *mw.WorkerChain
	extensions  *ext.Registry
	counter     *worker.Counter
	limiter     *queue.Limiter

	pending     []ext.Extension
	clientOpts  []client.Option
	idleBackoff backoff.Strategy
	downBackoff backoff.Strategy
	reloader    worker.Reloader
	jobLogger   worker.JobLogger

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu       sync.Mutex
	launcher *launcher.Launcher
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithExtension registers an extension with the engine.
func WithExtension(x ext.Extension) Option {
	return func(e *Engine) { e.pending = append(e.pending, x) }
}

// WithClientOptions adds options to every connection, e.g. TLS or a
// password.
func WithClientOptions(opts ...client.Option) Option {
	return func(e *Engine) { e.clientOpts = append(e.clientOpts, opts...) }
}

// WithTracerProvider sets the TracerProvider used by the tracing
// interceptors. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets the MeterProvider used by the metrics
// interceptor and extension. The global provider is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// WithIdleBackoff sets the Processor pause after an empty fetch.
func WithIdleBackoff(s backoff.Strategy) Option {
	return func(e *Engine) { e.idleBackoff = s }
}

// WithDownBackoff sets the Processor pause after a failed fetch.
func WithDownBackoff(s backoff.Strategy) Option {
	return func(e *Engine) { e.downBackoff = s }
}

// WithQueueConfig limits how fast and how widely this process consumes
// the named queues.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(e *Engine) {
		if e.limiter == nil {
			e.limiter = queue.NewLimiter()
		}
		for _, cfg := range configs {
			e.limiter.SetQueueConfig(cfg)
		}
	}
}

// WithReloader sets the hook wrapping every job execution.
func WithReloader(r worker.Reloader) Option {
	return func(e *Engine) { e.reloader = r }
}

// WithJobLogger replaces the default job logger.
func WithJobLogger(l worker.JobLogger) Option {
	return func(e *Engine) { e.jobLogger = l }
}

// Build creates an Engine from cfg. Connections are dialed lazily.
func Build(cfg faktory.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:         cfg,
		logger:      slog.Default(),
		wid:         id.NewWID(),
		registry:    job.NewRegistry(),
		clientChain: mw.NewClientChain(),
		workerChain: mw.NewWorkerChain(),
		counter:     &worker.Counter{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.extensions = ext.NewRegistry(e.logger)
	for _, x := range e.pending {
		e.extensions.Register(x)
	}
	e.pending = nil

	tp := e.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := e.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	tracer := tp.Tracer(instrumentationName)
	meter := mp.Meter(instrumentationName)

	// Default client lane: batch tagging then tracing.
	e.clientChain.Use(batch.ClientMiddleware{})
	e.clientChain.Use(mw.NewPushTracingWithTracer(tracer))

	// Default worker lane: recover, tracing, metrics, batch identity, timeout.
	e.workerChain.Use(mw.NewRecover(e.logger))
	e.workerChain.Use(mw.NewTracingWithTracer(tracer))
	e.workerChain.Use(mw.NewMetricsWithMeter(meter))
	e.workerChain.Use(batch.WorkerMiddleware{})
	e.workerChain.Use(mw.NewTimeout(e.logger))

	e.extensions.Register(observability.NewMetricsExtensionWithMeter(meter))

	dialOpts := []client.Option{
		client.WithWID(e.wid),
		client.WithLabels(cfg.Labels...),
		client.WithReadTimeout(cfg.ReadTimeout),
		client.WithLogger(e.logger),
	}
	if cfg.URL != "" {
		dialOpts = append(dialOpts, client.WithURL(cfg.URL))
	}
	dialOpts = append(dialOpts, e.clientOpts...)

	pool, err := client.NewWorkerPool(cfg.EffectivePoolSize(), cfg.Concurrency,
		client.DialerFor(dialOpts...),
		client.WithPoolTimeout(cfg.PoolTimeout),
	)
	if err != nil {
		return nil, err
	}
	e.pool = pool

	return e, nil
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Config returns the engine's configuration.
func (e *Engine) Config() faktory.Config { return e.cfg }

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// WID returns the worker identity sent in HELLO and BEAT.
func (e *Engine) WID() string { return e.wid }

// Pool returns the connection pool, e.g. for batch.Batch.Jobs.
func (e *Engine) Pool() *client.Pool { return e.pool }

// Registry returns the job registry.
func (e *Engine) Registry() *job.Registry { return e.registry }

// Extensions returns the extension registry, which also holds lifecycle
// callbacks and error handlers.
func (e *Engine) Extensions() *ext.Registry { return e.extensions }

// ClientMiddleware returns the client-lane chain.
func (e *Engine) ClientMiddleware() *mw.ClientChain { return e.clientChain }

// WorkerMiddleware returns the worker-lane chain.
func (e *Engine) WorkerMiddleware() *mw.WorkerChain { return e.workerChain }

// Limiter returns the per-queue limiter, or nil if no queue is limited.
func (e *Engine) Limiter() *queue.Limiter { return e.limiter }

// Busy returns the number of jobs this process is executing.
func (e *Engine) Busy() int { return e.counter.Busy() }

// On registers a lifecycle callback.
func (e *Engine) On(event ext.Event, fn ext.Callback) { e.extensions.On(event, fn) }

// OnError registers an error handler.
func (e *Engine) OnError(h ext.ErrorHandler) { e.extensions.OnError(h) }

// ──────────────────────────────────────────────────
// Registration
// ──────────────────────────────────────────────────

// Register binds jobtype to factory with default options.
func (e *Engine) Register(jobtype string, factory job.Factory, opts ...job.Option) {
	e.registry.Register(jobtype, factory, opts...)
}

// RegisterFunc binds jobtype to a function with default options.
func (e *Engine) RegisterFunc(jobtype string, fn job.PerformerFunc, opts ...job.Option) {
	e.registry.RegisterFunc(jobtype, fn, opts...)
}

// Register registers a typed job definition with the engine.
func Register[T any](e *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(e.registry, def)
}

// ──────────────────────────────────────────────────
// Client API
// ──────────────────────────────────────────────────

// Push sends a copy of j through the client middleware and to the
// server. It returns "" with a nil error if an interceptor dropped the
// job.
func (e *Engine) Push(ctx context.Context, j *job.Job) (string, error) {
	j = j.Clone()
	jid, err := e.clientChain.Invoke(ctx, j, func(ctx context.Context) (string, error) {
		var jid string
		err := e.pool.With(ctx, func(c *client.Client) error {
			var err error
			jid, err = c.Push(ctx, j)
			return err
		})
		return jid, err
	})
	if err != nil {
		return "", err
	}
	if jid != "" {
		e.extensions.EmitJobPushed(ctx, j)
	}
	return jid, nil
}

// Set returns a Setter for jobtype starting from its registered defaults.
func (e *Engine) Set(jobtype string, opts ...job.Option) *job.Setter {
	return job.NewSetter(e, jobtype, e.registry.Defaults(jobtype)).Set(opts...)
}

// Perform pushes a jobtype job with args for immediate execution.
func (e *Engine) Perform(ctx context.Context, jobtype string, args ...any) (string, error) {
	return e.Set(jobtype).PerformAsync(ctx, args...)
}

// PerformIn pushes a jobtype job to run after d.
func (e *Engine) PerformIn(ctx context.Context, d time.Duration, jobtype string, args ...any) (string, error) {
	return e.Set(jobtype).PerformIn(ctx, d, args...)
}

// TrackProgress records progress for the job running in ctx. A non-zero
// reserveUntil also extends the job's reservation; it must lie in the
// next 24 hours.
func (e *Engine) TrackProgress(ctx context.Context, percent int, desc string, reserveUntil time.Time) error {
	jid := job.JIDFrom(ctx)
	if jid == "" {
		return faktory.ErrNoCurrentJob
	}
	p := client.Progress{JID: jid, Percent: percent, Description: desc, ReserveUntil: reserveUntil}
	if err := p.Validate(time.Now()); err != nil {
		return err
	}
	return e.pool.With(ctx, func(c *client.Client) error {
		return c.TrackSet(ctx, p)
	})
}

// Progress returns the progress recorded for jid, or nil.
func (e *Engine) Progress(ctx context.Context, jid string) (*client.TrackStatus, error) {
	var st *client.TrackStatus
	err := e.pool.With(ctx, func(c *client.Client) error {
		var err error
		st, err = c.TrackGet(ctx, jid)
		return err
	})
	return st, err
}

// Info returns the server's status document.
func (e *Engine) Info(ctx context.Context) (map[string]any, error) {
	var info map[string]any
	err := e.pool.With(ctx, func(c *client.Client) error {
		var err error
		info, err = c.Info(ctx)
		return err
	})
	return info, err
}

// ──────────────────────────────────────────────────
// Worker API
// ──────────────────────────────────────────────────

// Run processes jobs until ctx is done, Stop is called, or the server
// asks the process to terminate. It returns after running jobs have
// finished or the shutdown timeout forced them to abort.
func (e *Engine) Run(ctx context.Context) error {
	l, err := e.newLauncher()
	if err != nil {
		return err
	}
	defer func() {
		e.mu.Lock()
		e.launcher = nil
		e.mu.Unlock()
	}()
	return l.Run(ctx)
}

// Quiet stops fetching new jobs.
func (e *Engine) Quiet() {
	if l := e.current(); l != nil {
		l.Quiet()
	}
}

// Stop shuts down a running engine and waits for Run to return or ctx to
// be done.
func (e *Engine) Stop(ctx context.Context) error {
	if l := e.current(); l != nil {
		return l.Stop(ctx)
	}
	return nil
}

// Data returns the worker's reporting data, or false if it is not
// running.
func (e *Engine) Data() (launcher.Data, bool) {
	if l := e.current(); l != nil {
		return l.Data(), true
	}
	return launcher.Data{}, false
}

// Close releases the engine's connections.
func (e *Engine) Close() error {
	return e.pool.Close()
}

func (e *Engine) current() *launcher.Launcher {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.launcher
}

func (e *Engine) newLauncher() (*launcher.Launcher, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.launcher != nil {
		return nil, ErrAlreadyRunning
	}

	var fetchOpts []fetch.Option
	if e.limiter != nil {
		fetchOpts = append(fetchOpts, fetch.WithLimiter(e.limiter))
	}
	f, err := fetch.New(e.pool, e.cfg.Queues, e.cfg.Weights, e.cfg.Strict, fetchOpts...)
	if err != nil {
		return nil, fmt.Errorf("faktory: fetcher: %w", err)
	}

	execOpts := []worker.ExecutorOption{
		worker.WithChain(e.workerChain),
		worker.WithExecutorExtensions(e.extensions),
	}
	if e.reloader != nil {
		execOpts = append(execOpts, worker.WithReloader(e.reloader))
	}
	if e.jobLogger != nil {
		execOpts = append(execOpts, worker.WithJobLogger(e.jobLogger))
	}
	exec := worker.NewExecutor(e.registry, e.logger, execOpts...)

	mgrOpts := []worker.ManagerOption{
		worker.WithExtensions(e.extensions),
		worker.WithCounter(e.counter),
		worker.WithManagerLogger(e.logger),
	}
	if e.idleBackoff != nil {
		mgrOpts = append(mgrOpts, worker.WithIdleBackoff(e.idleBackoff))
	}
	if e.downBackoff != nil {
		mgrOpts = append(mgrOpts, worker.WithDownBackoff(e.downBackoff))
	}
	mgr, err := worker.NewManager(e.cfg.Concurrency, f, exec, mgrOpts...)
	if err != nil {
		return nil, err
	}

	e.launcher = launcher.New(e.cfg, mgr, e.pool,
		launcher.WithLogger(e.logger),
		launcher.WithExtensions(e.extensions),
		launcher.WithWID(e.wid),
	)
	return e.launcher, nil
}
