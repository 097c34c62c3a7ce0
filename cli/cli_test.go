package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/xraph/faktory/backoff"
	"github.com/xraph/faktory/cli"
	"github.com/xraph/faktory/config"
	"github.com/xraph/faktory/engine"
	"github.com/xraph/faktory/internal/faktorytest"
)

func execute(t *testing.T, ctx context.Context, args []string, opts ...cli.Option) (string, error) {
	t.Helper()
	cmd := cli.New(opts...)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestPush(t *testing.T) {
	srv := faktorytest.New(t)
	out, err := execute(t, context.Background(), []string{
		"push", "--url", srv.URL(), "--queue", "mail", "--retry", "2",
		"SendEmail", `"a@example.com"`, "3", "plain",
	})
	if err != nil {
		t.Fatalf("push: %v", err)
	}

	queued := srv.Queue("mail")
	if len(queued) != 1 {
		t.Fatalf("mail queue has %d jobs, want 1", len(queued))
	}
	j := queued[0]
	if strings.TrimSpace(out) != j.JID {
		t.Errorf("printed %q, want jid %s", out, j.JID)
	}
	if j.Type != "SendEmail" || j.Retry == nil || *j.Retry != 2 {
		t.Errorf("job = %+v", j)
	}
	want := []any{"a@example.com", float64(3), "plain"}
	if !slices.Equal(j.Args, want) {
		t.Errorf("args = %v, want %v", j.Args, want)
	}
}

func TestInfo(t *testing.T) {
	srv := faktorytest.New(t)
	out, err := execute(t, context.Background(), []string{"info", "--url", srv.URL()})
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
}

func TestRun(t *testing.T) {
	srv := faktorytest.New(t)
	ran := make(chan struct{}, 1)
	register := cli.WithRegister(func(e *engine.Engine) {
		e.RegisterFunc("Ping", func(context.Context, ...any) error {
			ran <- struct{}{}
			return nil
		})
	})
	fast := cli.WithEngineOptions(engine.WithIdleBackoff(backoff.NewConstant(5 * time.Millisecond)))

	if _, err := execute(t, context.Background(), []string{"push", "--url", srv.URL(), "Ping"}); err != nil {
		t.Fatalf("push: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := execute(t, ctx, []string{
			"run", "--url", srv.URL(), "-c", "2", "-q", "default", "--log-level", "error",
		}, register, fast)
		done <- err
	}()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
	faktorytest.Eventually(t, time.Second, func() bool { return len(srv.Acked()) == 1 }, "job acked")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	_, err := execute(t, context.Background(), []string{"run", "-c", "0"})
	if err == nil {
		t.Fatal("expected error for zero concurrency")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := cli.NewLogger(&buf, config.LogConfig{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "jid", "abc")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("info record logged at warn level")
	}
	if !strings.Contains(buf.String(), `"jid":"abc"`) {
		t.Errorf("output = %s, want JSON record", buf.String())
	}

	if _, err := cli.NewLogger(&buf, config.LogConfig{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := cli.NewLogger(&buf, config.LogConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}
