package batch

import (
	"context"
	"sync"

	"github.com/xraph/faktory/client"
)

// Status is a lazily loaded batch status. The server is asked once; later
// calls return the cached answer.
type Status struct {
	conn Conn
	bid  string

	mu sync.Mutex
	st *client.BatchStatus
}

// NewStatus creates a Status for bid.
func NewStatus(conn Conn, bid string) *Status {
	return &Status{conn: conn, bid: bid}
}

// Get returns the batch status, fetching it on first use.
func (s *Status) Get(ctx context.Context) (*client.BatchStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st != nil {
		return s.st, nil
	}
	err := s.conn.With(ctx, func(c *client.Client) error {
		st, err := c.BatchStatus(ctx, s.bid)
		if err != nil {
			return err
		}
		s.st = st
		return nil
	})
	return s.st, err
}
