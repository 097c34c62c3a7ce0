package faktory

import (
	"time"
)

// Option configures a Config.
type Option func(*Config) error

// WithURL sets the server URL.
func WithURL(url string) Option {
	return func(c *Config) error {
		c.URL = url
		return nil
	}
}

// WithConcurrency sets the number of concurrent Processors.
func WithConcurrency(n int) Option {
	return func(c *Config) error {
		c.Concurrency = n
		return nil
	}
}

// WithQueues sets the queues to fetch from, in declared order.
func WithQueues(queues ...string) Option {
	return func(c *Config) error {
		c.Queues = queues
		return nil
	}
}

// WithWeight sets the weight of a single queue for weighted fetching.
func WithWeight(queue string, weight int) Option {
	return func(c *Config) error {
		if c.Weights == nil {
			c.Weights = make(map[string]int)
		}
		c.Weights[queue] = weight
		return nil
	}
}

// WithStrict switches fetching to strict declared order.
func WithStrict(strict bool) Option {
	return func(c *Config) error {
		c.Strict = strict
		return nil
	}
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.ShutdownTimeout = d
		return nil
	}
}

// WithHeartbeatInterval sets how often BEAT is sent.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Config) error {
		c.HeartbeatInterval = d
		return nil
	}
}

// WithReadTimeout sets the per-read socket timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.ReadTimeout = d
		return nil
	}
}

// WithPoolSize sets the worker connection pool size.
func WithPoolSize(n int) Option {
	return func(c *Config) error {
		c.PoolSize = n
		return nil
	}
}

// WithTag sets the process tag.
func WithTag(tag string) Option {
	return func(c *Config) error {
		c.Tag = tag
		return nil
	}
}

// WithLabels sets the labels sent in HELLO.
func WithLabels(labels ...string) Option {
	return func(c *Config) error {
		c.Labels = labels
		return nil
	}
}
