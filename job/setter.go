package job

import (
	"context"
	"time"
)

// Pusher sends a job to the server and returns its JID.
type Pusher interface {
	Push(ctx context.Context, j *Job) (string, error)
}

// Setter pushes jobs of one type with merged options. A Setter is
// immutable; Set returns a new one.
type Setter struct {
	pusher  Pusher
	jobtype string
	opts    Options
}

// NewSetter creates a Setter for jobtype starting from defaults.
func NewSetter(p Pusher, jobtype string, defaults Options) *Setter {
	return &Setter{pusher: p, jobtype: jobtype, opts: defaults}
}

// Set returns a Setter with opts overlaid on the current options.
func (s *Setter) Set(opts ...Option) *Setter {
	return &Setter{
		pusher:  s.pusher,
		jobtype: s.jobtype,
		opts:    s.opts.Merge(NewOptions(opts...)),
	}
}

// Options returns the merged options this Setter pushes with.
func (s *Setter) Options() Options { return s.opts }

// PerformAsync pushes a job for immediate execution.
func (s *Setter) PerformAsync(ctx context.Context, args ...any) (string, error) {
	return s.Push(ctx, s.build(args))
}

// PerformIn pushes a job to run after d.
func (s *Setter) PerformIn(ctx context.Context, d time.Duration, args ...any) (string, error) {
	return s.PerformAt(ctx, time.Now().Add(d), args...)
}

// PerformAt pushes a job to run at t. A t in the past runs immediately.
func (s *Setter) PerformAt(ctx context.Context, t time.Time, args ...any) (string, error) {
	j := s.build(args)
	j.ScheduleAt(t)
	return s.Push(ctx, j)
}

// Push pushes a copy of j with the Setter's options filling the fields
// j leaves unset. Fields set on j win over the Setter's options; j itself
// is not modified, so it can serve as a template across Setters.
func (s *Setter) Push(ctx context.Context, j *Job) (string, error) {
	j = j.Clone()
	if j.Type == "" {
		j.Type = s.jobtype
	}
	s.opts.ApplyTo(j)
	return s.pusher.Push(ctx, j)
}

func (s *Setter) build(args []any) *Job {
	j := New(s.jobtype, args...)
	j.Queue = ""
	return j
}
