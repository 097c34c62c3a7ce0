package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/faktory"
	"github.com/xraph/faktory/backoff"
	"github.com/xraph/faktory/ext"
	"github.com/xraph/faktory/job"
)

// Default Manager timings.
const (
	DefaultPause     = 500 * time.Millisecond
	DefaultKillGrace = 1 * time.Second
)

// Manager keeps Concurrency Processors running, replaces those that die,
// and coordinates quiet and stop.
type Manager struct {
	concurrency int
	fetcher     Fetcher
	executor    *Executor
	extensions  *ext.Registry
	counter     *Counter
	idleBackoff backoff.Strategy
	downBackoff backoff.Strategy
	pause       time.Duration
	killGrace   time.Duration
	logger      *slog.Logger

	base context.Context

	mu    sync.Mutex
	procs map[*Processor]struct{}
	done  bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithExtensions sets the registry that receives lifecycle events, job
// events and errors.
func WithExtensions(r *ext.Registry) ManagerOption {
	return func(m *Manager) { m.extensions = r }
}

// WithCounter sets the busy counter shared with the rest of the process.
func WithCounter(c *Counter) ManagerOption {
	return func(m *Manager) { m.counter = c }
}

// WithIdleBackoff sets the pause after an empty fetch.
func WithIdleBackoff(s backoff.Strategy) ManagerOption {
	return func(m *Manager) { m.idleBackoff = s }
}

// WithDownBackoff sets the pause after a failed fetch.
func WithDownBackoff(s backoff.Strategy) ManagerOption {
	return func(m *Manager) { m.downBackoff = s }
}

// WithPause sets how often Stop checks for idle Processors.
func WithPause(d time.Duration) ManagerOption {
	return func(m *Manager) { m.pause = d }
}

// WithKillGrace bounds how long a hard shutdown waits for killed
// Processors to exit.
func WithKillGrace(d time.Duration) ManagerOption {
	return func(m *Manager) { m.killGrace = d }
}

// WithManagerLogger sets the logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager running concurrency Processors that take
// work from fetcher and run it with executor.
func NewManager(concurrency int, fetcher Fetcher, executor *Executor, opts ...ManagerOption) (*Manager, error) {
	if concurrency < 1 {
		return nil, fmt.Errorf("%w: got %d", faktory.ErrInvalidConcurrency, concurrency)
	}
	m := &Manager{
		concurrency: concurrency,
		fetcher:     fetcher,
		executor:    executor,
		idleBackoff: backoff.DefaultIdle(),
		downBackoff: backoff.DefaultDown(),
		pause:       DefaultPause,
		killGrace:   DefaultKillGrace,
		logger:      slog.Default(),
		base:        context.Background(),
		procs:       make(map[*Processor]struct{}, concurrency),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.extensions == nil {
		m.extensions = ext.NewRegistry(m.logger)
	}
	if m.counter == nil {
		m.counter = &Counter{}
	}
	return m, nil
}

// Start launches the Processors. Job contexts inherit ctx's values but
// not its cancellation; use Stop to end work.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done || len(m.procs) > 0 {
		return
	}
	m.base = context.WithoutCancel(ctx)
	for loopN := 0; loopN < m.concurrency; loopN++ {
		p := newProcessor(m)
		m.procs[p] = struct{}{}
		p.Start()
	}
}

// Quiet stops Processors from fetching new work and fires the quiet
// event. Running jobs continue. Later calls are no-ops.
func (m *Manager) Quiet(ctx context.Context) {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return
	}
	m.done = true
	procs := m.snapshot()
	m.mu.Unlock()

	m.logger.Info("terminating quiet processors", slog.Int("count", len(procs)))
	for _, p := range procs {
		p.Terminate(false)
	}
	m.extensions.Fire(ctx, ext.Quiet)
}

// Stop quiets the Manager, fires the shutdown event, and waits for
// running jobs until ctx is done. Jobs still running then are killed and
// reported as failed with faktory.ErrShutdown.
func (m *Manager) Stop(ctx context.Context) {
	m.Quiet(ctx)
	m.extensions.Fire(ctx, ext.Shutdown)

	if m.waitIdle(ctx) {
		return
	}
	m.hardShutdown()
}

// waitIdle polls every pause until no Processor is left or ctx is done.
func (m *Manager) waitIdle(ctx context.Context) bool {
	if m.Count() > 0 {
		m.logger.Info("pausing to allow processors to finish")
	}
	ticker := time.NewTicker(m.pause)
	defer ticker.Stop()
	for {
		if m.Count() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return m.Count() == 0
		case <-ticker.C:
		}
	}
}

// Stopped reports whether Quiet or Stop has been called.
func (m *Manager) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Count returns the number of live Processors.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.procs)
}

// InFlight returns the jobs being executed now.
func (m *Manager) InFlight() []*job.Job {
	m.mu.Lock()
	procs := m.snapshot()
	m.mu.Unlock()

	var jobs []*job.Job
	for _, p := range procs {
		if j := p.Job(); j != nil {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

// Busy returns the process-wide number of executing jobs.
func (m *Manager) Busy() int { return m.counter.Busy() }

func (m *Manager) processorStopped(p *Processor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.procs, p)
}

func (m *Manager) processorDied(p *Processor, reason error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.procs, p)
	if m.done {
		return
	}
	m.logger.Debug("replacing processor", slog.String("reason", reason.Error()))
	np := newProcessor(m)
	m.procs[np] = struct{}{}
	np.Start()
}

// hardShutdown kills every remaining Processor and waits up to the kill
// grace for them to exit.
func (m *Manager) hardShutdown() {
	m.mu.Lock()
	procs := m.snapshot()
	m.mu.Unlock()
	if len(procs) == 0 {
		return
	}

	var jids []string
	for _, p := range procs {
		if j := p.Job(); j != nil {
			jids = append(jids, j.JID)
		}
	}
	m.logger.Warn("terminating busy processors",
		slog.Int("count", len(procs)),
		slog.Any("in_flight", jids),
	)

	for _, p := range procs {
		p.Kill(false)
	}

	grace := time.NewTimer(m.killGrace)
	defer grace.Stop()
	for _, p := range procs {
		select {
		case <-p.Done():
		case <-grace.C:
			m.logger.Warn("processors did not exit within kill grace",
				slog.Duration("grace", m.killGrace),
			)
			return
		}
	}
}

// snapshot must be called with mu held.
func (m *Manager) snapshot() []*Processor {
	procs := make([]*Processor, 0, len(m.procs))
	for p := range m.procs {
		procs = append(procs, p)
	}
	return procs
}
