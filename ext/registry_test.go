package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/faktory/ext"
	"github.com/xraph/faktory/job"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnJobPushed(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobPushed")
	return nil
}

func (e *allHooksExt) OnJobStarted(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobStarted")
	return nil
}

func (e *allHooksExt) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobCompleted")
	return nil
}

func (e *allHooksExt) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	e.calls = append(e.calls, "OnJobFailed")
	return nil
}

func (e *allHooksExt) OnStartup(_ context.Context) error {
	e.calls = append(e.calls, "OnStartup")
	return nil
}

func (e *allHooksExt) OnQuiet(_ context.Context) error {
	e.calls = append(e.calls, "OnQuiet")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// jobOnlyExt only implements a subset of the job hooks.
type jobOnlyExt struct {
	calls []string
}

func (e *jobOnlyExt) Name() string { return "job-only" }

func (e *jobOnlyExt) OnJobPushed(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobPushed")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobPushed(_ context.Context, _ *job.Job) error {
	return errors.New("boom")
}

// panickingExt panics from every job hook.
type panickingExt struct{}

func (e *panickingExt) Name() string { return "panicking" }

func (e *panickingExt) OnJobPushed(_ context.Context, _ *job.Job) error { panic("pushed") }

func (e *panickingExt) OnJobStarted(_ context.Context, _ *job.Job) error { panic("started") }

func (e *panickingExt) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	panic("completed")
}

func (e *panickingExt) OnJobFailed(_ context.Context, _ *job.Job, _ error) error { panic("failed") }

// ──────────────────────────────────────────────────
// Extension tests
// ──────────────────────────────────────────────────

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	jo := &jobOnlyExt{}
	r.Register(all)
	r.Register(jo)

	if got := len(r.Extensions()); got != 2 {
		t.Fatalf("expected 2 extensions, got %d", got)
	}

	ctx := context.Background()
	j := job.New("test-job")

	r.EmitJobPushed(ctx, j)
	r.EmitJobStarted(ctx, j)
	r.EmitJobCompleted(ctx, j, time.Second)
	r.EmitJobFailed(ctx, j, errors.New("fail"))

	want := []string{"OnJobPushed", "OnJobStarted", "OnJobCompleted", "OnJobFailed"}
	if !slices.Equal(all.calls, want) {
		t.Errorf("all: calls = %v, want %v", all.calls, want)
	}
	if !slices.Equal(jo.calls, []string{"OnJobPushed"}) {
		t.Errorf("jo: calls = %v", jo.calls)
	}
}

func TestRegistry_HookErrorsDoNotBlock(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	r.Register(&failingExt{})
	after := &jobOnlyExt{}
	r.Register(after)

	r.EmitJobPushed(context.Background(), job.New("x"))

	if len(after.calls) != 1 {
		t.Fatalf("extension after a failing one was not called: %v", after.calls)
	}
}

func TestRegistry_HookPanicsDoNotEscape(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	r.Register(&panickingExt{})
	after := &allHooksExt{}
	r.Register(after)

	ctx := context.Background()
	j := job.New("x")
	r.EmitJobPushed(ctx, j)
	r.EmitJobStarted(ctx, j)
	r.EmitJobCompleted(ctx, j, time.Millisecond)
	r.EmitJobFailed(ctx, j, errors.New("fail"))

	want := []string{"OnJobPushed", "OnJobStarted", "OnJobCompleted", "OnJobFailed"}
	if !slices.Equal(after.calls, want) {
		t.Errorf("calls after a panicking extension = %v, want %v", after.calls, want)
	}
}

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestFire_Order(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		for _, ev := range []ext.Event{ext.Startup, ext.Quiet, ext.Shutdown} {
			ev := ev
			r.On(ev, func(context.Context) error {
				order = append(order, string(ev)+":"+name)
				return nil
			})
		}
	}

	ctx := context.Background()
	r.Fire(ctx, ext.Startup)
	r.Fire(ctx, ext.Quiet)
	r.Fire(ctx, ext.Shutdown)

	want := []string{
		"startup:a", "startup:b", "startup:c",
		"quiet:c", "quiet:b", "quiet:a",
		"shutdown:c", "shutdown:b", "shutdown:a",
	}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v\nwant    %v", order, want)
	}
}

func TestFire_RunsOnce(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	n := 0
	r.On(ext.Shutdown, func(context.Context) error { n++; return nil })

	r.Fire(context.Background(), ext.Shutdown)
	r.Fire(context.Background(), ext.Shutdown)

	if n != 1 {
		t.Errorf("shutdown callback ran %d times, want 1", n)
	}
}

func TestFire_ErrorsIsolated(t *testing.T) {
	r := ext.NewRegistry(slog.Default())

	var (
		mu     sync.Mutex
		events []string
	)
	r.OnError(func(_ context.Context, err error, attrs ...slog.Attr) {
		mu.Lock()
		defer mu.Unlock()
		for _, a := range attrs {
			if a.Key == "event" {
				events = append(events, a.Value.String()+":"+err.Error())
			}
		}
	})

	ran := false
	r.On(ext.Startup, func(context.Context) error { return errors.New("first") })
	r.On(ext.Startup, func(context.Context) error { panic("second") })
	r.On(ext.Startup, func(context.Context) error { ran = true; return nil })

	r.Fire(context.Background(), ext.Startup)

	if !ran {
		t.Error("third callback did not run")
	}
	if len(events) != 2 {
		t.Fatalf("error handler saw %v, want 2 errors", events)
	}
	if events[0] != "startup:first" || !strings.Contains(events[1], "second") {
		t.Errorf("events = %v", events)
	}
}

func TestRegister_ProcessHooks(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	r.Fire(ctx, ext.Startup)
	r.Fire(ctx, ext.Quiet)
	r.Fire(ctx, ext.Shutdown)

	want := []string{"OnStartup", "OnQuiet", "OnShutdown"}
	if !slices.Equal(all.calls, want) {
		t.Errorf("calls = %v, want %v", all.calls, want)
	}
}

// ──────────────────────────────────────────────────
// Error handler tests
// ──────────────────────────────────────────────────

func TestHandleError_DefaultLogs(t *testing.T) {
	var buf strings.Builder
	r := ext.NewRegistry(slog.New(slog.NewTextHandler(&buf, nil)))

	r.HandleError(context.Background(), errors.New("kaboom"), slog.String("jid", "abc"))

	out := buf.String()
	if !strings.Contains(out, "kaboom") || !strings.Contains(out, "jid=abc") {
		t.Errorf("log output = %q", out)
	}
}

func TestHandleError_PanickingHandlerSkipped(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	r.OnError(func(context.Context, error, ...slog.Attr) { panic("handler") })

	got := 0
	r.OnError(func(context.Context, error, ...slog.Attr) { got++ })

	r.HandleError(context.Background(), errors.New("x"))

	if got != 1 {
		t.Errorf("handler after panicking one ran %d times, want 1", got)
	}
}
