package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/faktory"
	"github.com/xraph/faktory/protocol"
)

// MaxReservation is the furthest ahead reserve_until may be.
const MaxReservation = 24 * time.Hour

// Progress is a job's self-reported progress. A non-zero ReserveUntil
// also extends the job's reservation.
type Progress struct {
	JID          string
	Percent      int
	Description  string
	ReserveUntil time.Time
}

type progressPayload struct {
	JID          string `json:"jid"`
	Percent      int    `json:"percent"`
	Description  string `json:"desc,omitempty"`
	ReserveUntil string `json:"reserve_until,omitempty"`
}

// Validate checks p against now.
func (p Progress) Validate(now time.Time) error {
	if p.JID == "" {
		return faktory.ErrMissingJID
	}
	if p.Percent < 0 || p.Percent > 100 {
		return fmt.Errorf("%w: got %d", faktory.ErrInvalidPercent, p.Percent)
	}
	if p.ReserveUntil.IsZero() {
		return nil
	}
	if !p.ReserveUntil.After(now) {
		return faktory.ErrReserveInPast
	}
	if p.ReserveUntil.Sub(now) > MaxReservation {
		return faktory.ErrReserveTooFar
	}
	return nil
}

// TrackStatus is the server's record of a job's progress.
type TrackStatus struct {
	JID         string `json:"jid"`
	Percent     int    `json:"percent"`
	Description string `json:"desc,omitempty"`
	State       string `json:"state,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// TrackSet records progress. Invalid progress is rejected locally and
// never sent.
func (c *Client) TrackSet(ctx context.Context, p Progress) error {
	if err := p.Validate(time.Now()); err != nil {
		return fmt.Errorf("faktory/client: track set: %w", err)
	}
	payload := progressPayload{JID: p.JID, Percent: p.Percent, Description: p.Description}
	if !p.ReserveUntil.IsZero() {
		payload.ReserveUntil = p.ReserveUntil.UTC().Format(time.RFC3339)
	}
	cmd, err := protocol.NewJSONCommand(protocol.VerbTrack, payload, protocol.TrackSet)
	if err != nil {
		return err
	}
	if err := c.transaction(ctx, func() error { return c.expectOK(cmd) }); err != nil {
		return fmt.Errorf("faktory/client: track set: %w", err)
	}
	return nil
}

// TrackGet returns the progress recorded for jid, or nil if none.
func (c *Client) TrackGet(ctx context.Context, jid string) (*TrackStatus, error) {
	var raw json.RawMessage
	cmd := protocol.NewCommand(protocol.VerbTrack, protocol.TrackGet, jid)
	if err := c.bulkJSON(ctx, cmd, &raw); err != nil {
		return nil, fmt.Errorf("faktory/client: track get: %w", err)
	}
	if raw == nil {
		return nil, nil //nolint:nilnil // no progress recorded is not an error
	}
	var st TrackStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("faktory/client: track get: %w", err)
	}
	return &st, nil
}
