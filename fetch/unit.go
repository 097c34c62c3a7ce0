package fetch

import (
	"context"
	"sync"

	"github.com/xraph/faktory/client"
	"github.com/xraph/faktory/job"
)

// UnitOfWork is a reserved job awaiting its outcome. Exactly one of
// Acknowledge or Fail should be called; calling both is not guarded.
type UnitOfWork struct {
	Job  *job.Job
	conn Conn

	release func()
	once    sync.Once
}

// Queue returns the queue the job was fetched from.
func (u *UnitOfWork) Queue() string { return u.Job.Queue }

// JID returns the job's ID.
func (u *UnitOfWork) JID() string { return u.Job.JID }

// Acknowledge reports success.
func (u *UnitOfWork) Acknowledge(ctx context.Context) error {
	defer u.done()
	return u.conn.With(ctx, func(c *client.Client) error {
		return c.Ack(ctx, u.Job.JID)
	})
}

// Fail reports cause as the job's failure. backtrace is trimmed to the
// job's backtrace setting.
func (u *UnitOfWork) Fail(ctx context.Context, cause error, backtrace []string) error {
	if n := u.Job.Backtrace; n > 0 && len(backtrace) > n {
		backtrace = backtrace[:n]
	}
	defer u.done()
	f := client.NewFailure(u.Job.JID, cause, backtrace)
	return u.conn.With(ctx, func(c *client.Client) error {
		return c.Fail(ctx, f)
	})
}

// done frees the limiter slot, if any. The slot is freed even when
// reporting the outcome failed, since the job is no longer running here.
func (u *UnitOfWork) done() {
	if u.release != nil {
		u.once.Do(u.release)
	}
}
