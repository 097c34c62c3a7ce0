package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/faktory"
	"github.com/xraph/faktory/backoff"
	"github.com/xraph/faktory/fetch"
	"github.com/xraph/faktory/job"
	"github.com/xraph/faktory/middleware"
)

// Fetcher reserves jobs for Processors. *fetch.Fetcher satisfies it.
type Fetcher interface {
	Retrieve(ctx context.Context) (*fetch.UnitOfWork, error)
}

// Processor fetches and runs one job at a time until it is terminated,
// killed, or a job fails. A failed job ends the Processor; its Manager
// starts a replacement.
type Processor struct {
	mgr *Manager

	ctx    context.Context
	cancel context.CancelFunc

	done     atomic.Bool
	killed   atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	exited   chan struct{}
	started  sync.Once

	current atomic.Pointer[job.Job]

	// down is when fetching started failing; zero while online.
	down time.Time
	idle int
	fail int
}

func newProcessor(m *Manager) *Processor {
	ctx, cancel := context.WithCancel(m.base)
	return &Processor{
		mgr:    m,
		ctx:    ctx,
		cancel: cancel,
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// Start launches the Processor's goroutine. Later calls are no-ops.
func (p *Processor) Start() {
	p.started.Do(func() { go p.run() })
}

// Job returns the job being executed, or nil.
func (p *Processor) Job() *job.Job { return p.current.Load() }

// Done is closed when the Processor's goroutine has exited.
func (p *Processor) Done() <-chan struct{} { return p.exited }

// Terminate asks the Processor to exit after its current job. With wait
// it blocks until the Processor has exited.
func (p *Processor) Terminate(wait bool) {
	p.done.Store(true)
	p.stopOnce.Do(func() { close(p.stop) })
	if wait {
		<-p.exited
	}
}

// Kill cancels the running job's context and stops waiting for it. The
// job is reported to the server as failed with faktory.ErrShutdown so it
// can be retried at once. With wait it blocks until the Processor has
// exited, which does not wait for a job body that ignores its context.
func (p *Processor) Kill(wait bool) {
	p.killed.Store(true)
	p.Terminate(false)
	p.cancel()
	if wait {
		<-p.exited
	}
}

func (p *Processor) run() {
	defer close(p.exited)
	defer p.cancel()

	for !p.done.Load() {
		if err := p.processOne(); err != nil {
			if errors.Is(err, faktory.ErrShutdown) {
				break
			}
			p.mgr.processorDied(p, err)
			return
		}
	}
	p.mgr.processorStopped(p)
}

func (p *Processor) processOne() error {
	work := p.fetch()
	if work == nil {
		return nil
	}

	p.mgr.counter.Inc()
	p.current.Store(work.Job)
	defer func() {
		p.current.Store(nil)
		p.mgr.counter.Dec()
	}()
	return p.process(work)
}

func (p *Processor) fetch() *fetch.UnitOfWork {
	work, err := p.mgr.fetcher.Retrieve(p.ctx)
	if err != nil {
		if p.ctx.Err() != nil {
			return nil
		}
		p.fail++
		if p.down.IsZero() {
			p.down = time.Now()
			p.mgr.logger.Error("error fetching job", slog.String("error", err.Error()))
		}
		backoff.Sleep(p.ctx, p.stop, p.mgr.downBackoff.Delay(p.fail))
		return nil
	}
	p.fail = 0

	if !p.down.IsZero() {
		p.mgr.logger.Info("faktory is online",
			slog.Duration("downtime", time.Since(p.down)),
		)
		p.down = time.Time{}
	}

	if work == nil {
		p.idle++
		backoff.Sleep(p.ctx, p.stop, p.mgr.idleBackoff.Delay(p.idle))
		return nil
	}
	p.idle = 0
	return work
}

func (p *Processor) process(work *fetch.UnitOfWork) error {
	j := work.Job
	// Reports must reach the server even after the job context is cancelled.
	rctx := context.WithoutCancel(p.ctx)

	start := time.Now()
	err := p.perform(j)

	switch {
	case err == nil:
		if ackErr := work.Acknowledge(rctx); ackErr != nil {
			return ackErr
		}
		p.mgr.extensions.EmitJobCompleted(rctx, j, time.Since(start))
		return nil

	case errors.Is(err, faktory.ErrShutdown):
		p.mgr.logger.Warn("job aborted by shutdown",
			slog.String("jid", j.JID),
			slog.String("jobtype", j.Type),
		)
		if failErr := work.Fail(rctx, faktory.ErrShutdown, nil); failErr != nil {
			p.mgr.logger.Error("failed to report aborted job",
				slog.String("jid", j.JID),
				slog.String("error", failErr.Error()),
			)
		}
		return faktory.ErrShutdown

	default:
		p.mgr.extensions.HandleError(rctx, err,
			slog.String("context", "job raised error"),
			slog.String("jid", j.JID),
			slog.String("jobtype", j.Type),
			slog.String("queue", j.Queue),
		)
		if failErr := work.Fail(rctx, err, backtraceOf(err)); failErr != nil {
			err = errors.Join(err, failErr)
		}
		p.mgr.extensions.EmitJobFailed(rctx, j, err)
		return err
	}
}

// perform runs the job body in its own goroutine so a kill can abandon
// it. A kill always yields faktory.ErrShutdown unless the body already
// finished cleanly.
func (p *Processor) perform(j *job.Job) error {
	res := make(chan error, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				res <- middleware.NewPanicError(v)
			}
		}()
		res <- p.mgr.executor.Execute(p.ctx, j)
	}()

	select {
	case err := <-res:
		if err != nil && p.killed.Load() {
			return faktory.ErrShutdown
		}
		return err
	case <-p.ctx.Done():
		select {
		case err := <-res:
			if err == nil {
				return nil
			}
		default:
		}
		return faktory.ErrShutdown
	}
}

func backtraceOf(err error) []string {
	var bt interface{ Backtrace() []string }
	if errors.As(err, &bt) {
		return bt.Backtrace()
	}
	return nil
}
