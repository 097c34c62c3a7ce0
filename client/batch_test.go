package client_test

import (
	"context"
	"testing"

	"github.com/xraph/faktory/client"
	"github.com/xraph/faktory/internal/faktorytest"
	"github.com/xraph/faktory/job"
)

func TestBatchCommands(t *testing.T) {
	srv := faktorytest.New(t)
	c := dial(t, srv)
	ctx := context.Background()

	bid, err := c.BatchNew(ctx, client.BatchDefinition{
		Description: "import",
		Success:     job.New("ImportDone"),
	})
	if err != nil {
		t.Fatalf("BatchNew: %v", err)
	}
	if bid == "" {
		t.Fatal("empty bid")
	}

	member := job.New("ImportRow")
	member.SetCustom(job.CustomBID, bid)
	if _, err := c.Push(ctx, member); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := c.BatchCommit(ctx, bid); err != nil {
		t.Fatalf("BatchCommit: %v", err)
	}

	st, err := c.BatchStatus(ctx, bid)
	if err != nil {
		t.Fatalf("BatchStatus: %v", err)
	}
	if st.BID != bid || st.Total != 1 || st.Pending != 1 || st.Description != "import" {
		t.Errorf("status = %+v", st)
	}

	if err := c.BatchOpen(ctx, bid); err != nil {
		t.Fatalf("BatchOpen: %v", err)
	}
	if b, _ := srv.Batch(bid); b.Opened != 1 {
		t.Errorf("opened = %d", b.Opened)
	}
}
