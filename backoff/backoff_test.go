package backoff_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/faktory/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestExponential(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{100, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRange_StaysInBounds(t *testing.T) {
	r := backoff.NewRange(100*time.Millisecond, 500*time.Millisecond)
	for attempt := 0; attempt < 1000; attempt++ {
		got := r.Delay(attempt)
		if got < 100*time.Millisecond || got >= 500*time.Millisecond {
			t.Fatalf("Delay = %v, out of [100ms, 500ms)", got)
		}
	}

	fixed := backoff.NewRange(time.Second, time.Second)
	if got := fixed.Delay(1); got != time.Second {
		t.Errorf("degenerate range Delay = %v", got)
	}
}

func TestSleep(t *testing.T) {
	if !backoff.Sleep(context.Background(), nil, time.Millisecond) {
		t.Error("Sleep should complete")
	}

	stop := make(chan struct{})
	close(stop)
	start := time.Now()
	if backoff.Sleep(context.Background(), stop, time.Minute) {
		t.Error("Sleep should be interrupted by stop")
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return promptly")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if backoff.Sleep(ctx, nil, time.Minute) {
		t.Error("Sleep should be interrupted by ctx")
	}
}
