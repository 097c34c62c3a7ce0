// Package launcher runs a worker process: it starts the Manager, sends
// heartbeats, obeys the server's quiet and terminate signals, and stops
// the Manager within the shutdown timeout.
package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xraph/faktory"
	"github.com/xraph/faktory/client"
	"github.com/xraph/faktory/ext"
	"github.com/xraph/faktory/fetch"
	"github.com/xraph/faktory/worker"
)

// State values reported in heartbeats.
const (
	StateRunning   = ""
	StateQuiet     = "quiet"
	StateTerminate = "terminate"
)

// Data describes the process for reporting.
type Data struct {
	Hostname    string    `json:"hostname"`
	StartedAt   time.Time `json:"started_at"`
	PID         int       `json:"pid"`
	Tag         string    `json:"tag"`
	Concurrency int       `json:"concurrency"`
	Queues      []string  `json:"queues"`
	Labels      []string  `json:"labels"`
	Identity    string    `json:"identity"`
	Busy        int       `json:"busy"`
}

// Launcher owns one Manager and its heartbeat.
type Launcher struct {
	mgr        *worker.Manager
	conn       fetch.Conn
	extensions *ext.Registry
	interval   time.Duration
	timeout    time.Duration
	logger     *slog.Logger
	data       Data

	state    atomic.Value
	stop     chan struct{}
	stopOnce sync.Once
	finished chan struct{}

	beatErrs rate.Sometimes
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(la *Launcher) { la.logger = l }
}

// WithExtensions sets the registry whose startup event fires on Run.
func WithExtensions(r *ext.Registry) Option {
	return func(la *Launcher) { la.extensions = r }
}

// WithWID sets the worker identity used in reporting data. It must match
// the WID the connections in conn send in HELLO.
func WithWID(wid string) Option {
	return func(la *Launcher) {
		la.data.Identity = fmt.Sprintf("%s:%d:%s", la.data.Hostname, la.data.PID, wid)
	}
}

// New creates a Launcher for mgr using cfg's heartbeat interval, shutdown
// timeout and reporting fields. conn carries heartbeats.
func New(cfg faktory.Config, mgr *worker.Manager, conn fetch.Conn, opts ...Option) *Launcher {
	host, _ := os.Hostname()
	pid := os.Getpid()

	l := &Launcher{
		mgr:      mgr,
		conn:     conn,
		interval: cfg.HeartbeatInterval,
		timeout:  cfg.ShutdownTimeout,
		logger:   slog.Default(),
		data: Data{
			Hostname:    host,
			StartedAt:   time.Now(),
			PID:         pid,
			Tag:         cfg.Tag,
			Concurrency: cfg.Concurrency,
			Queues:      uniq(cfg.Queues),
			Labels:      slices.Clone(cfg.Labels),
			Identity:    fmt.Sprintf("%s:%d", host, pid),
		},
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
		beatErrs: rate.Sometimes{First: 1, Interval: time.Minute},
	}
	l.state.Store(StateRunning)
	for _, opt := range opts {
		opt(l)
	}
	if l.interval <= 0 {
		l.interval = faktory.DefaultConfig().HeartbeatInterval
	}
	if l.extensions == nil {
		l.extensions = ext.NewRegistry(l.logger)
	}
	return l
}

// Run fires the startup event, starts the Manager and the heartbeat, and
// blocks until ctx is done, Stop is called, or the server sends
// terminate. It then stops the Manager, waiting up to the shutdown
// timeout for running jobs.
func (l *Launcher) Run(ctx context.Context) error {
	defer close(l.finished)

	l.extensions.Fire(ctx, ext.Startup)
	l.mgr.Start(ctx)
	l.logger.Info("worker process started",
		slog.String("identity", l.data.Identity),
		slog.Int("concurrency", l.data.Concurrency),
		slog.Any("queues", l.data.Queues),
	)

	// Beats continue while the Manager drains.
	hbCtx, stopBeats := context.WithCancel(context.WithoutCancel(ctx))

	g := new(errgroup.Group)
	g.Go(func() error {
		l.heartbeat(hbCtx)
		return nil
	})
	g.Go(func() error {
		defer stopBeats()
		select {
		case <-ctx.Done():
		case <-l.stop:
		}
		l.shutdown(context.WithoutCancel(ctx))
		return nil
	})
	err := g.Wait()

	l.logger.Info("worker process stopped", slog.String("identity", l.data.Identity))
	return err
}

// Quiet stops fetching new jobs. Running jobs finish normally.
func (l *Launcher) Quiet() {
	if !l.state.CompareAndSwap(StateRunning, StateQuiet) {
		return
	}
	l.logger.Info("quieting worker process")
	l.mgr.Quiet(context.Background())
}

// Stop makes Run shut down and waits for it to return or for ctx to be
// done.
func (l *Launcher) Stop(ctx context.Context) error {
	l.requestStop()
	select {
	case <-l.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopping reports whether Quiet or Stop has been requested.
func (l *Launcher) Stopping() bool { return l.State() != StateRunning }

// State returns the process state sent in heartbeats.
func (l *Launcher) State() string { return l.state.Load().(string) }

// Data returns the reporting data with the current busy count.
func (l *Launcher) Data() Data {
	d := l.data
	d.Busy = l.mgr.Busy()
	return d
}

func (l *Launcher) requestStop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Launcher) shutdown(ctx context.Context) {
	l.state.Store(StateTerminate)
	l.logger.Info("shutting down", slog.Duration("timeout", l.timeout))

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	l.mgr.Stop(ctx)
}

func (l *Launcher) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		l.beat(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (l *Launcher) beat(ctx context.Context) {
	var sig client.BeatSignal
	err := l.conn.With(ctx, func(c *client.Client) error {
		var err error
		sig, err = c.Beat(ctx, l.State())
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.beatErrs.Do(func() {
			l.logger.Warn("heartbeat failed", slog.String("error", err.Error()))
		})
		return
	}

	switch sig {
	case client.BeatQuiet:
		l.Quiet()
	case client.BeatTerminate:
		if l.State() != StateTerminate {
			l.logger.Info("server requested terminate")
		}
		l.requestStop()
	}
}

func uniq(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
