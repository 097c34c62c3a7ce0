package client

import (
	"context"
	"fmt"

	"github.com/xraph/faktory/job"
	"github.com/xraph/faktory/protocol"
)

// BatchDefinition is the BATCH NEW payload.
type BatchDefinition struct {
	ParentBID   string   `json:"parent_bid,omitempty"`
	Description string   `json:"description,omitempty"`
	Success     *job.Job `json:"success,omitempty"`
	Complete    *job.Job `json:"complete,omitempty"`
}

// BatchStatus is the server's view of a batch.
type BatchStatus struct {
	BID         string `json:"bid"`
	ParentBID   string `json:"parent_bid,omitempty"`
	Description string `json:"description,omitempty"`
	Total       int64  `json:"total"`
	Pending     int64  `json:"pending"`
	Failed      int64  `json:"failed"`
	CreatedAt   string `json:"created_at"`
	CompleteSt  string `json:"complete_st,omitempty"`
	SuccessSt   string `json:"success_st,omitempty"`
}

// BatchNew creates a batch and returns its server-assigned BID.
func (c *Client) BatchNew(ctx context.Context, def BatchDefinition) (string, error) {
	cmd, err := protocol.NewJSONCommand(protocol.VerbBatch, def, protocol.BatchNew)
	if err != nil {
		return "", err
	}

	var bid string
	err = c.transaction(ctx, func() error {
		rep, err := c.call(cmd)
		if err != nil {
			return err
		}
		if rep.Kind != protocol.KindSimple && rep.Kind != protocol.KindBulk {
			return unexpected(cmd, rep)
		}
		bid = rep.String()
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("faktory/client: batch new: %w", err)
	}
	return bid, nil
}

// BatchOpen reopens a committed batch so more jobs can be added.
func (c *Client) BatchOpen(ctx context.Context, bid string) error {
	cmd := protocol.NewCommand(protocol.VerbBatch, protocol.BatchOpen, bid)
	if err := c.transaction(ctx, func() error { return c.expectOK(cmd) }); err != nil {
		return fmt.Errorf("faktory/client: batch open %s: %w", bid, err)
	}
	return nil
}

// BatchCommit marks a batch's job list complete.
func (c *Client) BatchCommit(ctx context.Context, bid string) error {
	cmd := protocol.NewCommand(protocol.VerbBatch, protocol.BatchCommit, bid)
	if err := c.transaction(ctx, func() error { return c.expectOK(cmd) }); err != nil {
		return fmt.Errorf("faktory/client: batch commit %s: %w", bid, err)
	}
	return nil
}

// BatchStatus fetches the status of a batch.
func (c *Client) BatchStatus(ctx context.Context, bid string) (*BatchStatus, error) {
	var st BatchStatus
	cmd := protocol.NewCommand(protocol.VerbBatch, protocol.BatchStatus, bid)
	if err := c.bulkJSON(ctx, cmd, &st); err != nil {
		return nil, fmt.Errorf("faktory/client: batch status %s: %w", bid, err)
	}
	return &st, nil
}
