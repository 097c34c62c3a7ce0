// Package batch groups jobs so the server can run a callback when all of
// them have been attempted (complete) or have succeeded (success).
//
//	b := batch.New()
//	b.SetDescription("Import user 12345")
//	_ = b.SetSuccess(batch.Callback("ImportDone", 12345))
//	err := b.Jobs(ctx, pool, func(ctx context.Context) error {
//	    _, err := eng.Perform(ctx, "ImportRow", row)
//	    return err
//	})
//
// Jobs pushed with the context passed to fn belong to the batch. A job
// running inside a batch can reopen it with ForJob to add more jobs, or
// create a child batch with SetParent.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xraph/faktory"
	"github.com/xraph/faktory/client"
	"github.com/xraph/faktory/id"
	"github.com/xraph/faktory/job"
)

// Conn runs fn with exclusive use of a server connection.
// *client.Pool satisfies it.
type Conn interface {
	With(ctx context.Context, fn func(*client.Client) error) error
}

// Batch is a client-side batch definition. Once it has a BID its
// callbacks and parent can no longer change.
type Batch struct {
	mu          sync.Mutex
	bid         string
	parentBID   string
	description string
	success     *job.Job
	complete    *job.Job
}

// New creates an unattached batch. Jobs creates it on the server.
func New() *Batch { return &Batch{} }

// Open returns a handle to an existing batch. Jobs reopens it.
func Open(bid string) *Batch { return &Batch{bid: bid} }

// Callback builds a callback job template.
func Callback(jobtype string, args ...any) *job.Job {
	j := job.New(jobtype, args...)
	j.JID = id.NewCallbackJID()
	return j
}

// BID returns the server-assigned batch ID, or "" before creation.
func (b *Batch) BID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bid
}

// ParentBID returns the parent batch ID, if any.
func (b *Batch) ParentBID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parentBID
}

// Description returns the batch description.
func (b *Batch) Description() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.description
}

// SetDescription sets a human-readable description.
func (b *Batch) SetDescription(desc string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.description = desc
}

// SetSuccess sets the job run when every job in the batch succeeded.
func (b *Batch) SetSuccess(cb *job.Job) error {
	return b.setCallback(&b.success, cb)
}

// SetComplete sets the job run when every job in the batch was attempted.
func (b *Batch) SetComplete(cb *job.Job) error {
	return b.setCallback(&b.complete, cb)
}

// SetParent makes b a child of parent.
func (b *Batch) SetParent(parent *Batch) error {
	return b.SetParentBID(parent.BID())
}

// SetParentBID makes b a child of the batch bid.
func (b *Batch) SetParentBID(bid string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bid != "" {
		return faktory.ErrBatchImmutable
	}
	b.parentBID = bid
	return nil
}

func (b *Batch) setCallback(dst **job.Job, cb *job.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bid != "" {
		return faktory.ErrBatchImmutable
	}
	if cb == nil || cb.Type == "" {
		return fmt.Errorf("batch: callback: %w", faktory.ErrMissingJobType)
	}
	cb = cb.Clone()
	if cb.JID == "" {
		cb.JID = id.NewCallbackJID()
	}
	if cb.Args == nil {
		cb.Args = []any{}
	}
	if cb.Queue == "" {
		cb.Queue = job.DefaultQueue
	}
	*dst = cb
	return nil
}

// Definition returns the BATCH NEW payload. At least one callback is
// required.
func (b *Batch) Definition() (client.BatchDefinition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.success == nil && b.complete == nil {
		return client.BatchDefinition{}, faktory.ErrCallbackRequired
	}
	return client.BatchDefinition{
		ParentBID:   b.parentBID,
		Description: b.description,
		Success:     b.success,
		Complete:    b.complete,
	}, nil
}

// Jobs creates the batch on the server, or reopens it if it already has
// a BID, then runs fn with a context carrying b as the current batch.
// Jobs pushed with that context join the batch. The batch is committed
// after fn returns, even if fn fails or panics.
func (b *Batch) Jobs(ctx context.Context, conn Conn, fn func(ctx context.Context) error) (retErr error) {
	bid := b.BID()
	if bid == "" {
		def, err := b.Definition()
		if err != nil {
			return err
		}
		err = conn.With(ctx, func(c *client.Client) error {
			var err error
			bid, err = c.BatchNew(ctx, def)
			return err
		})
		if err != nil {
			return err
		}
		b.mu.Lock()
		b.bid = bid
		b.mu.Unlock()
	} else {
		err := conn.With(ctx, func(c *client.Client) error { return c.BatchOpen(ctx, bid) })
		if err != nil {
			return err
		}
	}

	defer func() {
		cerr := conn.With(context.WithoutCancel(ctx), func(c *client.Client) error {
			return c.BatchCommit(context.WithoutCancel(ctx), bid)
		})
		retErr = errors.Join(retErr, cerr)
	}()
	return fn(WithBatch(ctx, b))
}

// Status returns a lazily fetched status for b.
func (b *Batch) Status(conn Conn) *Status {
	return NewStatus(conn, b.BID())
}
