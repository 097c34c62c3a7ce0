package batch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/xraph/faktory"
	"github.com/xraph/faktory/batch"
	"github.com/xraph/faktory/client"
	"github.com/xraph/faktory/internal/faktorytest"
	"github.com/xraph/faktory/job"
	"github.com/xraph/faktory/middleware"
)

type fixture struct {
	srv   *faktorytest.Server
	pool  *client.Pool
	chain *middleware.ClientChain
}

func setup(t *testing.T) *fixture {
	t.Helper()
	srv := faktorytest.New(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool, err := client.NewPool(3, client.DialerFor(client.WithURL(srv.URL()), client.WithLogger(logger)))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })

	chain := middleware.NewClientChain()
	chain.Use(batch.ClientMiddleware{})
	return &fixture{srv: srv, pool: pool, chain: chain}
}

func (f *fixture) push(ctx context.Context, j *job.Job) error {
	_, err := f.chain.Invoke(ctx, j, func(ctx context.Context) (string, error) {
		var jid string
		err := f.pool.With(ctx, func(c *client.Client) error {
			var err error
			jid, err = c.Push(ctx, j)
			return err
		})
		return jid, err
	})
	return err
}

func TestJobs_RequiresCallback(t *testing.T) {
	f := setup(t)
	b := batch.New()

	called := false
	err := b.Jobs(context.Background(), f.pool, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, faktory.ErrCallbackRequired) {
		t.Fatalf("err = %v, want ErrCallbackRequired", err)
	}
	if called {
		t.Error("fn ran without a callback")
	}
	if cmds := f.srv.Commands(); len(cmds) != 0 {
		t.Errorf("commands sent: %v", cmds)
	}
}

func TestJobs_CreatesAndCommits(t *testing.T) {
	f := setup(t)
	b := batch.New()
	b.SetDescription("nightly import")
	if err := b.SetSuccess(batch.Callback("ImportDone", 42)); err != nil {
		t.Fatalf("SetSuccess: %v", err)
	}
	if err := b.SetComplete(&job.Job{Type: "ImportComplete"}); err != nil {
		t.Fatalf("SetComplete: %v", err)
	}

	ctx := context.Background()
	outside := job.New("Outside")
	err := b.Jobs(ctx, f.pool, func(ctx context.Context) error {
		if batch.FromContext(ctx) != b {
			t.Error("batch missing from context")
		}
		for loopN := 0; loopN < 2; loopN++ {
			if err := f.push(ctx, job.New("ImportRow")); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if err := f.push(ctx, outside); err != nil {
		t.Fatalf("push: %v", err)
	}

	if b.BID() == "" {
		t.Fatal("BID not assigned")
	}
	rec, ok := f.srv.Batch(b.BID())
	if !ok {
		t.Fatalf("server has no batch %s", b.BID())
	}
	if rec.Total != 2 || !rec.Committed || rec.Description != "nightly import" {
		t.Errorf("batch record = %+v", rec)
	}
	if rec.Success == nil || !strings.HasPrefix(rec.Success.JID, "batch_") || rec.Success.Queue != job.DefaultQueue {
		t.Errorf("success callback = %+v", rec.Success)
	}
	if rec.Complete == nil || rec.Complete.JID == "" || rec.Complete.Args == nil {
		t.Errorf("complete callback = %+v", rec.Complete)
	}

	for _, j := range f.srv.Queue(job.DefaultQueue) {
		switch j.Type {
		case "ImportRow":
			if j.BID() != b.BID() {
				t.Errorf("batch job bid = %q, want %q", j.BID(), b.BID())
			}
		case "Outside":
			if j.BID() != "" {
				t.Errorf("job pushed outside batch has bid %q", j.BID())
			}
		}
	}
}

func TestJobs_CommitsOnError(t *testing.T) {
	f := setup(t)
	b := batch.New()
	_ = b.SetComplete(batch.Callback("Done"))

	want := errors.New("stop")
	err := b.Jobs(context.Background(), f.pool, func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	if rec, _ := f.srv.Batch(b.BID()); !rec.Committed {
		t.Error("batch not committed after error")
	}
}

func TestJobs_CommitsOnPanic(t *testing.T) {
	f := setup(t)
	b := batch.New()
	_ = b.SetComplete(batch.Callback("Done"))

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic was swallowed")
			}
		}()
		_ = b.Jobs(context.Background(), f.pool, func(context.Context) error { panic("boom") })
	}()

	if rec, _ := f.srv.Batch(b.BID()); !rec.Committed {
		t.Error("batch not committed after panic")
	}
}

func TestImmutableAfterCreate(t *testing.T) {
	f := setup(t)
	b := batch.New()
	_ = b.SetSuccess(batch.Callback("Done"))
	if err := b.Jobs(context.Background(), f.pool, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Jobs: %v", err)
	}

	checks := map[string]error{
		"SetSuccess":   b.SetSuccess(batch.Callback("X")),
		"SetComplete":  b.SetComplete(batch.Callback("X")),
		"SetParentBID": b.SetParentBID("b-99"),
		"SetParent":    b.SetParent(batch.Open("b-98")),
	}
	for name, err := range checks {
		if !errors.Is(err, faktory.ErrBatchImmutable) {
			t.Errorf("%s: err = %v, want ErrBatchImmutable", name, err)
		}
	}
}

func TestNestedBatches(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	parent := batch.New()
	_ = parent.SetSuccess(batch.Callback("ParentDone"))

	var child, grandchild *batch.Batch
	err := parent.Jobs(ctx, f.pool, func(ctx context.Context) error {
		if err := f.push(ctx, job.New("Root")); err != nil {
			return err
		}
		child = batch.New()
		if err := child.SetParent(parent); err != nil {
			return err
		}
		_ = child.SetSuccess(batch.Callback("ChildDone"))
		return child.Jobs(ctx, f.pool, func(ctx context.Context) error {
			if err := f.push(ctx, job.New("Leaf")); err != nil {
				return err
			}
			grandchild = batch.New()
			_ = grandchild.SetParent(child)
			_ = grandchild.SetComplete(batch.Callback("GrandchildDone"))
			return grandchild.Jobs(ctx, f.pool, func(ctx context.Context) error {
				return f.push(ctx, job.New("DeepLeaf"))
			})
		})
	})
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}

	p, _ := f.srv.Batch(parent.BID())
	c, _ := f.srv.Batch(child.BID())
	g, _ := f.srv.Batch(grandchild.BID())
	if c.ParentBID != parent.BID() || g.ParentBID != child.BID() {
		t.Errorf("parents: child→%q grandchild→%q", c.ParentBID, g.ParentBID)
	}
	if p.Total != 1 || c.Total != 1 || g.Total != 1 {
		t.Errorf("totals: parent %d, child %d, grandchild %d", p.Total, c.Total, g.Total)
	}
	for _, bid := range []string{parent.BID(), child.BID(), grandchild.BID()} {
		if rec, _ := f.srv.Batch(bid); !rec.Committed {
			t.Errorf("batch %s not committed", bid)
		}
	}
}

func TestForJob_Reopens(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	b := batch.New()
	_ = b.SetSuccess(batch.Callback("Done"))
	if err := b.Jobs(ctx, f.pool, func(ctx context.Context) error {
		return f.push(ctx, job.New("First"))
	}); err != nil {
		t.Fatalf("Jobs: %v", err)
	}

	if _, err := batch.ForJob(ctx); !errors.Is(err, faktory.ErrNoCurrentJob) {
		t.Errorf("ForJob outside a job: err = %v", err)
	}

	running := f.srv.Queue(job.DefaultQueue)[0]
	jctx := job.WithJob(ctx, running)
	reopened, err := batch.ForJob(jctx)
	if err != nil || reopened == nil {
		t.Fatalf("ForJob = %v, %v", reopened, err)
	}
	if err := reopened.Jobs(jctx, f.pool, func(ctx context.Context) error {
		return f.push(ctx, job.New("Second"))
	}); err != nil {
		t.Fatalf("reopened Jobs: %v", err)
	}

	rec, _ := f.srv.Batch(b.BID())
	if rec.Opened != 1 || rec.Total != 2 || !rec.Committed {
		t.Errorf("batch record = %+v", rec)
	}

	plain := job.WithJob(ctx, job.New("NoBatch"))
	if nb, err := batch.ForJob(plain); nb != nil || err != nil {
		t.Errorf("ForJob without bid = %v, %v", nb, err)
	}
}

func TestStatus_Lazy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	b := batch.New()
	b.SetDescription("counted")
	_ = b.SetSuccess(batch.Callback("Done"))
	_ = b.Jobs(ctx, f.pool, func(ctx context.Context) error {
		return f.push(ctx, job.New("One"))
	})

	st := b.Status(f.pool)
	for loopN := 0; loopN < 3; loopN++ {
		got, err := st.Get(ctx)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.BID != b.BID() || got.Total != 1 || got.Pending != 1 || got.Description != "counted" {
			t.Errorf("status = %+v", got)
		}
	}

	n := 0
	for _, c := range f.srv.Commands() {
		if strings.HasPrefix(c, "BATCH STATUS") {
			n++
		}
	}
	if n != 1 {
		t.Errorf("BATCH STATUS sent %d times, want 1", n)
	}
}

func TestWorkerMiddleware(t *testing.T) {
	j := job.New("Member")
	j.SetCustom(job.CustomBID, "b-7")

	inst := &ident{}
	ctx := batch.WithBatch(context.Background(), batch.Open("b-inherited"))
	err := batch.WorkerMiddleware{}.Perform(ctx, inst, j, func(ctx context.Context) error {
		if batch.FromContext(ctx) != nil {
			t.Error("inherited batch leaked into job")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if inst.jid != j.JID || inst.bid != "b-7" {
		t.Errorf("identity = (%q, %q)", inst.jid, inst.bid)
	}
}

type ident struct{ jid, bid string }

func (i *ident) SetIdentity(jid, bid string)             { i.jid, i.bid = jid, bid }
func (i *ident) Perform(context.Context, ...any) error { return nil }
