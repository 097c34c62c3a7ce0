package job

import "time"

// Options configures how a job type is pushed. Zero fields are unset.
type Options struct {
	// Queue is the queue name the job is pushed to.
	Queue string

	// Retry is the retry budget. Nil leaves it to the server.
	Retry *int

	// ReserveFor is how long the server waits for ACK or FAIL.
	ReserveFor time.Duration

	// Backtrace is how many backtrace lines the server keeps on failure.
	Backtrace int

	// Custom is free-form metadata merged into the job's custom map.
	Custom map[string]any
}

// Option is a functional option for configuring Options.
type Option func(*Options)

// WithQueue sets the queue name.
func WithQueue(q string) Option {
	return func(o *Options) {
		o.Queue = q
	}
}

// WithRetry sets the retry budget. Zero disables retries.
func WithRetry(n int) Option {
	return func(o *Options) {
		o.Retry = &n
	}
}

// WithReserveFor sets the server-side reservation window.
func WithReserveFor(d time.Duration) Option {
	return func(o *Options) {
		o.ReserveFor = d
	}
}

// WithBacktrace sets how many backtrace lines are kept on failure.
func WithBacktrace(n int) Option {
	return func(o *Options) {
		o.Backtrace = n
	}
}

// WithCustom sets a single custom metadata key.
func WithCustom(key string, value any) Option {
	return func(o *Options) {
		if o.Custom == nil {
			o.Custom = make(map[string]any)
		}
		o.Custom[key] = value
	}
}

// NewOptions builds Options from functional options.
func NewOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Merge returns o overlaid with other. Set fields in other win, and
// Custom maps are deep-merged.
func (o Options) Merge(other Options) Options {
	out := o
	if other.Queue != "" {
		out.Queue = other.Queue
	}
	if other.Retry != nil {
		r := *other.Retry
		out.Retry = &r
	}
	if other.ReserveFor != 0 {
		out.ReserveFor = other.ReserveFor
	}
	if other.Backtrace != 0 {
		out.Backtrace = other.Backtrace
	}
	out.Custom = mergeCustom(o.Custom, other.Custom)
	return out
}

// ApplyTo fills the fields j leaves unset. Fields already set on j take
// precedence, including an explicit "default" queue, and j.Custom wins
// key by key over o.Custom.
func (o Options) ApplyTo(j *Job) {
	if j.Queue == "" {
		j.Queue = o.Queue
	}
	if j.Queue == "" {
		j.Queue = DefaultQueue
	}
	if j.Retry == nil && o.Retry != nil {
		r := *o.Retry
		j.Retry = &r
	}
	if j.ReserveFor == 0 && o.ReserveFor > 0 {
		j.ReserveFor = int(o.ReserveFor / time.Second)
	}
	if j.Backtrace == 0 {
		j.Backtrace = o.Backtrace
	}
	j.Custom = mergeCustom(o.Custom, j.Custom)
}
