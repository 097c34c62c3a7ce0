package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xraph/faktory"
	"github.com/xraph/faktory/protocol"
)

// DialFunc opens a new connection for a Pool.
type DialFunc func(ctx context.Context) (*Client, error)

// Pool is a bounded set of lazily dialed connections. Each checkout has
// exclusive use of one Client for the duration of a With call.
type Pool struct {
	dial    DialFunc
	timeout time.Duration
	size    int

	// slots holds one entry per connection the pool may own. A nil entry
	// is capacity that has not been dialed yet.
	slots chan *Client

	mu     sync.Mutex
	closed bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolTimeout bounds the wait for a free connection.
func WithPoolTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.timeout = d }
}

// NewPool creates a pool of at most size connections opened with dial.
func NewPool(size int, dial DialFunc, opts ...PoolOption) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("faktory/client: pool size must be at least 1, got %d", size)
	}
	p := &Pool{
		dial:    dial,
		timeout: time.Second,
		size:    size,
		slots:   make(chan *Client, size),
	}
	for _, opt := range opts {
		opt(p)
	}
	for loopN := 0; loopN < size; loopN++ {
		p.slots <- nil
	}
	return p, nil
}

// NewWorkerPool creates a pool for a worker process running concurrency
// Processors. Each Processor holds a connection while fetching, so the
// pool needs headroom for the heartbeat and for pushes made from jobs.
func NewWorkerPool(size, concurrency int, dial DialFunc, opts ...PoolOption) (*Pool, error) {
	if size < concurrency+faktory.MinPoolHeadroom {
		return nil, fmt.Errorf("%w: size %d, concurrency %d, need at least %d",
			faktory.ErrPoolTooSmall, size, concurrency, concurrency+faktory.MinPoolHeadroom)
	}
	return NewPool(size, dial, opts...)
}

// DialerFor returns a DialFunc that dials with opts.
func DialerFor(opts ...Option) DialFunc {
	return func(ctx context.Context) (*Client, error) {
		return Dial(ctx, opts...)
	}
}

// Size returns the maximum number of connections.
func (p *Pool) Size() int { return p.size }

// Get checks out a connection, dialing one if needed. The caller must
// Put it back.
func (p *Pool) Get(ctx context.Context) (*Client, error) {
	if p.isClosed() {
		return nil, faktory.ErrPoolClosed
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	var c *Client
	select {
	case c = <-p.slots:
	case <-timer.C:
		return nil, faktory.ErrPoolTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if c != nil {
		return c, nil
	}
	c, err := p.dial(ctx)
	if err != nil {
		p.slots <- nil
		return nil, err
	}
	return c, nil
}

// Put returns a connection to the pool. A nil c releases the slot
// without a connection.
func (p *Pool) Put(c *Client) {
	if p.isClosed() && c != nil {
		_ = c.Close()
		c = nil
	}
	p.slots <- c
}

// With runs fn with a checked-out connection and returns it afterwards.
// A connection left with a parse error is discarded rather than reused.
func (p *Pool) With(ctx context.Context, fn func(*Client) error) error {
	c, err := p.Get(ctx)
	if err != nil {
		return err
	}

	err = fn(c)

	var parseErr *protocol.ParseError
	if errors.As(err, &parseErr) {
		_ = c.Close()
		c = nil
	}
	p.Put(c)
	return err
}

// Close closes idle connections and makes future checkouts fail.
// Connections checked out at the time are closed when returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for {
		select {
		case c := <-p.slots:
			if c != nil {
				errs = append(errs, c.Close())
			}
		default:
			return errors.Join(errs...)
		}
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
