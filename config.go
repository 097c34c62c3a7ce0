package faktory

import (
	"fmt"
	"time"
)

// DefaultPoolHeadroom is how many connections beyond Concurrency the
// engine adds to the worker pool when PoolSize is unset.
const DefaultPoolHeadroom = 5

// MinPoolHeadroom is the smallest headroom a worker pool may have: one
// connection for the heartbeat and one for pushes made from inside jobs.
const MinPoolHeadroom = 2

// Config holds configuration for a Faktory engine.
type Config struct {
	// URL is the server address, e.g. "tcp://:password@localhost:7419".
	// Empty means resolve it from FAKTORY_PROVIDER / FAKTORY_URL.
	URL string

	// Concurrency is the number of Processors the Manager keeps alive.
	Concurrency int

	// Queues is the list of queues to fetch from, in declared order.
	Queues []string

	// Weights gives a queue a relative weight for weighted fetching.
	// Queues not listed have weight 1.
	Weights map[string]int

	// Strict fetches queues in declared order on every poll instead of
	// shuffling them by weight.
	Strict bool

	// ShutdownTimeout bounds graceful shutdown before in-flight jobs are
	// forcibly aborted.
	ShutdownTimeout time.Duration

	// HeartbeatInterval is how often the Launcher sends BEAT.
	HeartbeatInterval time.Duration

	// ReadTimeout bounds every socket read.
	ReadTimeout time.Duration

	// PoolSize is the size of the worker connection pool. Zero means
	// Concurrency + DefaultPoolHeadroom.
	PoolSize int

	// PoolTimeout bounds the wait for a pooled connection.
	PoolTimeout time.Duration

	// Tag is a free-form process tag shown in reporting data.
	Tag string

	// Labels are sent to the server in HELLO.
	Labels []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       20,
		Queues:            []string{"default"},
		ShutdownTimeout:   28 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		ReadTimeout:       5 * time.Second,
		PoolTimeout:       1 * time.Second,
	}
}

// NewConfig returns DefaultConfig with opts applied and validated.
func NewConfig(opts ...Option) (Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first configuration error, if any.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidConcurrency, c.Concurrency)
	}
	if len(c.Queues) == 0 {
		return ErrNoQueues
	}
	for q, w := range c.Weights {
		if w < 1 {
			return fmt.Errorf("%w: queue %q has weight %d", ErrInvalidWeight, q, w)
		}
	}
	if c.PoolSize != 0 && c.PoolSize < c.Concurrency+MinPoolHeadroom {
		return fmt.Errorf("%w: size %d, concurrency %d", ErrPoolTooSmall, c.PoolSize, c.Concurrency)
	}
	return nil
}

// EffectivePoolSize returns PoolSize, or the default derived from
// Concurrency when PoolSize is unset.
func (c Config) EffectivePoolSize() int {
	if c.PoolSize > 0 {
		return c.PoolSize
	}
	return c.Concurrency + DefaultPoolHeadroom
}
