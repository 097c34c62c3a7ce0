package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/faktory"
	"github.com/xraph/faktory/client"
	"github.com/xraph/faktory/internal/faktorytest"
)

func TestProgressValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		p    client.Progress
		want error
	}{
		{"plain", client.Progress{JID: "j", Percent: 50}, nil},
		{"no jid", client.Progress{Percent: 50}, faktory.ErrMissingJID},
		{"bad percent", client.Progress{JID: "j", Percent: 101}, faktory.ErrInvalidPercent},
		{"reserve past", client.Progress{JID: "j", ReserveUntil: now.Add(-time.Second)}, faktory.ErrReserveInPast},
		{"reserve now", client.Progress{JID: "j", ReserveUntil: now}, faktory.ErrReserveInPast},
		{"reserve too far", client.Progress{JID: "j", ReserveUntil: now.Add(25 * time.Hour)}, faktory.ErrReserveTooFar},
		{"reserve ok", client.Progress{JID: "j", ReserveUntil: now.Add(time.Hour)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.p.Validate(now); !errors.Is(err, tt.want) {
				t.Errorf("Validate = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTrackSetGet(t *testing.T) {
	srv := faktorytest.New(t)
	c := dial(t, srv)
	ctx := context.Background()

	until := time.Now().Add(time.Hour)
	err := c.TrackSet(ctx, client.Progress{JID: "j1", Percent: 40, Description: "halfway", ReserveUntil: until})
	if err != nil {
		t.Fatalf("TrackSet: %v", err)
	}

	recorded := srv.Progress("j1")
	if recorded["desc"] != "halfway" || recorded["percent"] != float64(40) {
		t.Errorf("recorded = %v", recorded)
	}
	if _, err := time.Parse(time.RFC3339, recorded["reserve_until"].(string)); err != nil {
		t.Errorf("reserve_until not RFC3339: %v", err)
	}

	st, err := c.TrackGet(ctx, "j1")
	if err != nil {
		t.Fatalf("TrackGet: %v", err)
	}
	if st == nil || st.Percent != 40 || st.Description != "halfway" {
		t.Errorf("status = %+v", st)
	}

	missing, err := c.TrackGet(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("missing = %+v, %v", missing, err)
	}
}

func TestTrackSet_InvalidNotSent(t *testing.T) {
	srv := faktorytest.New(t)
	c := dial(t, srv)

	err := c.TrackSet(context.Background(), client.Progress{JID: "j1", ReserveUntil: time.Now().Add(-time.Minute)})
	if !errors.Is(err, faktory.ErrReserveInPast) {
		t.Fatalf("err = %v", err)
	}
	for _, cmd := range srv.Commands() {
		if len(cmd) >= 5 && cmd[:5] == "TRACK" {
			t.Error("invalid progress was sent")
		}
	}
}
