// Package fetch decides which queues a Processor polls and wraps a
// fetched job in a UnitOfWork that reports its outcome.
//
// In strict mode queues are polled in declared order every time, so a
// busy first queue starves the rest. In weighted mode each queue appears
// in the FETCH command as many times as its weight, the list is shuffled
// on every poll, and duplicates are dropped. A queue with weight 3 is
// then three times as likely to be checked first as a queue with weight 1.
package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"slices"

	"github.com/xraph/faktory"
	"github.com/xraph/faktory/client"
	"github.com/xraph/faktory/job"
	"github.com/xraph/faktory/queue"
)

// Conn runs fn with exclusive use of a server connection.
// *client.Pool satisfies it.
type Conn interface {
	With(ctx context.Context, fn func(*client.Client) error) error
}

// Fetcher produces UnitOfWork values from the server. It is safe for
// concurrent use by many Processors.
type Fetcher struct {
	conn   Conn
	strict bool
	queues []string
	// weighted holds every queue repeated by its weight.
	weighted []string
	limiter  *queue.Limiter
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLimiter drops rate-limited or saturated queues from every FETCH
// and holds a limiter slot for each fetched job until its outcome is
// reported.
func WithLimiter(l *queue.Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// New creates a Fetcher over queues. Queues missing from weights have
// weight 1. Duplicate queue names are collapsed.
func New(conn Conn, queues []string, weights map[string]int, strict bool, opts ...Option) (*Fetcher, error) {
	if len(queues) == 0 {
		return nil, faktory.ErrNoQueues
	}
	f := &Fetcher{
		conn:   conn,
		strict: strict,
		queues: uniq(queues),
	}
	for _, q := range f.queues {
		w, ok := weights[q]
		if !ok {
			w = 1
		}
		if w < 1 {
			return nil, fmt.Errorf("%w: queue %q has weight %d", faktory.ErrInvalidWeight, q, w)
		}
		for loopN := 0; loopN < w; loopN++ {
			f.weighted = append(f.weighted, q)
		}
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Strict reports whether queues are polled in declared order.
func (f *Fetcher) Strict() bool { return f.strict }

// QueuesCmd returns the queue order for the next FETCH.
func (f *Fetcher) QueuesCmd() []string {
	if f.strict {
		return slices.Clone(f.queues)
	}
	order := slices.Clone(f.weighted)
	rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	return uniq(order)
}

// Retrieve fetches the next job. It returns nil, nil when every queue is
// empty or held back by the limiter.
func (f *Fetcher) Retrieve(ctx context.Context) (*UnitOfWork, error) {
	queues := f.QueuesCmd()
	if f.limiter != nil {
		if queues = f.limiter.Filter(queues); len(queues) == 0 {
			return nil, nil
		}
	}

	var j *job.Job
	err := f.conn.With(ctx, func(c *client.Client) error {
		var err error
		j, err = c.Fetch(ctx, queues...)
		return err
	})
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, nil
	}

	work := &UnitOfWork{Job: j, conn: f.conn}
	if f.limiter != nil {
		q := j.Queue
		f.limiter.Acquire(q)
		work.release = func() { f.limiter.Release(q) }
	}
	return work, nil
}

// uniq drops repeated names, keeping the first occurrence.
func uniq(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
