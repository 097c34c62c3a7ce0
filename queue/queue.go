package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-queue rate limiting and concurrency.
type Config struct {
	// Name is the queue name.
	Name string `mapstructure:"name"`

	// MaxConcurrency limits how many jobs from this queue may run at
	// once in this process. Zero means no queue-specific limit.
	MaxConcurrency int `mapstructure:"max_concurrency"`

	// RateLimit is the maximum sustained jobs per second fetched from
	// this queue. Zero disables rate limiting.
	RateLimit float64 `mapstructure:"rate_limit"`

	// RateBurst is the token bucket size. Defaults to 1 if RateLimit is
	// set but RateBurst is zero.
	RateBurst int `mapstructure:"rate_burst"`
}

type queueState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Limiter enforces per-queue limits at fetch time. It is safe for
// concurrent use.
type Limiter struct {
	mu     sync.Mutex
	queues map[string]*queueState
}

// NewLimiter creates a Limiter with the given queue configurations.
func NewLimiter(configs ...Config) *Limiter {
	l := &Limiter{queues: make(map[string]*queueState, len(configs))}
	for _, cfg := range configs {
		l.queues[cfg.Name] = newQueueState(cfg)
	}
	return l
}

func newQueueState(cfg Config) *queueState {
	qs := &queueState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		qs.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return qs
}

// Filter returns the queues that may be fetched from now, preserving
// order.
func (l *Limiter) Filter(queues []string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(queues))
	for _, q := range queues {
		if l.open(q) {
			out = append(out, q)
		}
	}
	return out
}

// Allowed reports whether queue may be fetched from now.
func (l *Limiter) Allowed(queue string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open(queue)
}

// open reports whether queue has a free slot and a token. l.mu must be
// held.
func (l *Limiter) open(queue string) bool {
	qs := l.queues[queue]
	if qs == nil {
		return true
	}
	if qs.config.MaxConcurrency > 0 && qs.active >= qs.config.MaxConcurrency {
		return false
	}
	return qs.limiter == nil || qs.limiter.Tokens() >= 1
}

// Acquire records a job fetched from queue. It always succeeds: the job
// is already reserved on the server, so a concurrent fetch that raced
// past Filter may overshoot a limit by one. The caller must call
// Release when the job's outcome has been reported.
func (l *Limiter) Acquire(queue string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	qs := l.queues[queue]
	if qs == nil {
		return
	}
	if qs.limiter != nil {
		// Spend the token even if the bucket is empty; the debt keeps
		// the queue closed until it refills.
		qs.limiter.Reserve()
	}
	qs.active++
}

// Release frees the slot held for a job from queue.
func (l *Limiter) Release(queue string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if qs := l.queues[queue]; qs != nil && qs.active > 0 {
		qs.active--
	}
}

// SetQueueConfig updates or creates a queue configuration. The active
// count carries over.
func (l *Limiter) SetQueueConfig(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()

	qs := newQueueState(cfg)
	if existing := l.queues[cfg.Name]; existing != nil {
		qs.active = existing.active
	}
	l.queues[cfg.Name] = qs
}

// ActiveCount returns the number of running jobs from queue.
func (l *Limiter) ActiveCount(queue string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if qs := l.queues[queue]; qs != nil {
		return qs.active
	}
	return 0
}
