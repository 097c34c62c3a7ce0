package client_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/faktory"
	"github.com/xraph/faktory/client"
	"github.com/xraph/faktory/internal/faktorytest"
	"github.com/xraph/faktory/protocol"
)

func newPool(t *testing.T, srv *faktorytest.Server, size int, opts ...client.PoolOption) (*client.Pool, *atomic.Int32) {
	t.Helper()
	var dials atomic.Int32
	dialer := client.DialerFor(client.WithURL(srv.URL()), client.WithLogger(testLogger()))
	p, err := client.NewPool(size, func(ctx context.Context) (*client.Client, error) {
		dials.Add(1)
		return dialer(ctx)
	}, opts...)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p, &dials
}

func TestPool_LazyAndReused(t *testing.T) {
	srv := faktorytest.New(t)
	p, dials := newPool(t, srv, 3)

	if dials.Load() != 0 {
		t.Fatal("pool should dial lazily")
	}
	for loopN := 0; loopN < 5; loopN++ {
		err := p.With(context.Background(), func(c *client.Client) error {
			_, err := c.Info(context.Background())
			return err
		})
		if err != nil {
			t.Fatalf("With: %v", err)
		}
	}
	if dials.Load() != 1 {
		t.Errorf("dials = %d, want 1", dials.Load())
	}
}

func TestPool_BoundedConcurrency(t *testing.T) {
	srv := faktorytest.New(t)
	p, dials := newPool(t, srv, 2, client.WithPoolTimeout(5*time.Second))

	var (
		active, peak atomic.Int32
		wg           sync.WaitGroup
	)
	for loopN := 0; loopN < 8; loopN++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.With(context.Background(), func(*client.Client) error {
				n := active.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak.Load() > 2 {
		t.Errorf("peak checkouts = %d, want <= 2", peak.Load())
	}
	if dials.Load() > 2 {
		t.Errorf("dials = %d, want <= 2", dials.Load())
	}
}

func TestPool_Timeout(t *testing.T) {
	srv := faktorytest.New(t)
	p, _ := newPool(t, srv, 1, client.WithPoolTimeout(20*time.Millisecond))

	held, err := p.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer p.Put(held)

	if _, err := p.Get(context.Background()); !errors.Is(err, faktory.ErrPoolTimeout) {
		t.Fatalf("err = %v, want ErrPoolTimeout", err)
	}
}

func TestPool_DiscardsBrokenConnection(t *testing.T) {
	srv := faktorytest.New(t)
	p, dials := newPool(t, srv, 1)
	ctx := context.Background()

	srv.GarbageNext(protocol.VerbInfo, 1)
	err := p.With(ctx, func(c *client.Client) error {
		_, err := c.Info(ctx)
		return err
	})
	var parseErr *protocol.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("err = %v, want *ParseError", err)
	}

	err = p.With(ctx, func(c *client.Client) error {
		_, err := c.Info(ctx)
		return err
	})
	if err != nil {
		t.Fatalf("With after discard: %v", err)
	}
	if dials.Load() != 2 {
		t.Errorf("dials = %d, want 2", dials.Load())
	}
}

func TestPool_Closed(t *testing.T) {
	srv := faktorytest.New(t)
	p, _ := newPool(t, srv, 1)
	_ = p.Close()

	if _, err := p.Get(context.Background()); !errors.Is(err, faktory.ErrPoolClosed) {
		t.Fatalf("err = %v, want ErrPoolClosed", err)
	}
}

func TestNewWorkerPool_Undersized(t *testing.T) {
	dial := client.DialerFor()
	if _, err := client.NewWorkerPool(10, 10, dial); !errors.Is(err, faktory.ErrPoolTooSmall) {
		t.Fatalf("err = %v, want ErrPoolTooSmall", err)
	}
	if _, err := client.NewWorkerPool(12, 10, dial); err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}
}
