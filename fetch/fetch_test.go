package fetch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/xraph/faktory"
	"github.com/xraph/faktory/client"
	"github.com/xraph/faktory/fetch"
	"github.com/xraph/faktory/internal/faktorytest"
	"github.com/xraph/faktory/job"
	"github.com/xraph/faktory/queue"
)

func newPool(t *testing.T, srv *faktorytest.Server) *client.Pool {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := client.NewPool(2, client.DialerFor(client.WithURL(srv.URL()), client.WithLogger(logger)))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestNew_Validation(t *testing.T) {
	if _, err := fetch.New(nil, nil, nil, false); !errors.Is(err, faktory.ErrNoQueues) {
		t.Errorf("no queues: err = %v, want ErrNoQueues", err)
	}
	_, err := fetch.New(nil, []string{"a"}, map[string]int{"a": 0}, false)
	if !errors.Is(err, faktory.ErrInvalidWeight) {
		t.Errorf("zero weight: err = %v, want ErrInvalidWeight", err)
	}
}

func TestQueuesCmd_Strict(t *testing.T) {
	f, err := fetch.New(nil, []string{"critical", "default", "critical", "bulk"}, nil, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := []string{"critical", "default", "bulk"}
	for loopN := 0; loopN < 20; loopN++ {
		if got := f.QueuesCmd(); !slices.Equal(got, want) {
			t.Fatalf("QueuesCmd() = %v, want %v", got, want)
		}
	}
}

func TestQueuesCmd_Weighted(t *testing.T) {
	f, err := fetch.New(nil, []string{"high", "low"}, map[string]int{"high": 9}, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const polls = 2000
	first := map[string]int{}
	for loopN := 0; loopN < polls; loopN++ {
		got := f.QueuesCmd()
		if len(got) != 2 || !slices.Contains(got, "high") || !slices.Contains(got, "low") {
			t.Fatalf("QueuesCmd() = %v, want a permutation of [high low]", got)
		}
		first[got[0]]++
	}

	// Expected share for "high" is 9/10.
	if share := float64(first["high"]) / polls; share < 0.8 || share > 0.97 {
		t.Errorf("high first in %.2f of polls, want about 0.9", share)
	}
	if first["low"] == 0 {
		t.Error("low never polled first")
	}
}

func TestRetrieve(t *testing.T) {
	srv := faktorytest.New(t)
	f, err := fetch.New(newPool(t, srv), []string{"critical", "default"}, nil, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	work, err := f.Retrieve(ctx)
	if err != nil || work != nil {
		t.Fatalf("empty Retrieve = %v, %v; want nil, nil", work, err)
	}

	low := job.New("Low")
	high := job.New("High")
	high.Queue = "critical"
	srv.Enqueue(low)
	srv.Enqueue(high)

	work, err = f.Retrieve(ctx)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if work.JID() != high.JID || work.Queue() != "critical" {
		t.Fatalf("got %s from %s, want %s from critical", work.JID(), work.Queue(), high.JID)
	}
	if err := work.Acknowledge(ctx); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}

	work, err = f.Retrieve(ctx)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if err := work.Fail(ctx, errors.New("nope"), []string{"a.go:1", "b.go:2"}); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	if acked := srv.Acked(); !slices.Equal(acked, []string{high.JID}) {
		t.Errorf("acked = %v", acked)
	}
	failed := srv.Failed()
	if len(failed) != 1 || failed[0].JID != low.JID || failed[0].Message != "nope" {
		t.Fatalf("failed = %+v", failed)
	}
	if len(failed[0].Backtrace) != 2 {
		t.Errorf("backtrace = %v", failed[0].Backtrace)
	}
}

func TestFail_TrimsBacktrace(t *testing.T) {
	srv := faktorytest.New(t)
	f, err := fetch.New(newPool(t, srv), []string{"default"}, nil, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	j := job.New("Trim")
	j.Backtrace = 1
	srv.Enqueue(j)

	ctx := context.Background()
	work, err := f.Retrieve(ctx)
	if err != nil || work == nil {
		t.Fatalf("Retrieve = %v, %v", work, err)
	}
	if err := work.Fail(ctx, errors.New("x"), []string{"1", "2", "3"}); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if bt := srv.Failed()[0].Backtrace; !slices.Equal(bt, []string{"1"}) {
		t.Errorf("backtrace = %v, want [1]", bt)
	}
}

func TestRetrieve_Limiter(t *testing.T) {
	srv := faktorytest.New(t)
	for loopN := 0; loopN < 2; loopN++ {
		j := job.New("Resize")
		j.Queue = "images"
		srv.Enqueue(j)
	}
	srv.Enqueue(job.New("Mail"))

	lim := queue.NewLimiter(queue.Config{Name: "images", MaxConcurrency: 1})
	f, err := fetch.New(newPool(t, srv), []string{"images", "default"}, nil, true, fetch.WithLimiter(lim))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	first, err := f.Retrieve(ctx)
	if err != nil || first == nil || first.Queue() != "images" {
		t.Fatalf("first Retrieve = %v, %v; want an images job", first, err)
	}
	if lim.ActiveCount("images") != 1 {
		t.Fatalf("ActiveCount = %d, want 1", lim.ActiveCount("images"))
	}

	// images is saturated, so the next fetch skips it.
	second, err := f.Retrieve(ctx)
	if err != nil || second == nil || second.Queue() != "default" {
		t.Fatalf("second Retrieve = %v, %v; want the default job", second, err)
	}
	if err := second.Acknowledge(ctx); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}

	third, err := f.Retrieve(ctx)
	if err != nil || third != nil {
		t.Fatalf("third Retrieve = %v, %v; want nil while images is saturated", third, err)
	}

	if err := first.Fail(ctx, errors.New("boom"), nil); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if lim.ActiveCount("images") != 0 {
		t.Fatalf("ActiveCount after Fail = %d, want 0", lim.ActiveCount("images"))
	}
	next, err := f.Retrieve(ctx)
	if err != nil || next == nil || next.Queue() != "images" {
		t.Fatalf("Retrieve after release = %v, %v; want the second images job", next, err)
	}
}
