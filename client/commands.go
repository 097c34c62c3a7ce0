package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"

	"github.com/xraph/faktory"
	"github.com/xraph/faktory/job"
	"github.com/xraph/faktory/protocol"
)

// MaxFailureMessage is the longest failure message sent to the server.
const MaxFailureMessage = 1000

// Push enqueues j and returns its JID. A non-ERR error reply, such as
// NOTUNIQUE, is returned as a *protocol.SoftError.
func (c *Client) Push(ctx context.Context, j *job.Job) (string, error) {
	if err := j.Validate(); err != nil {
		return "", fmt.Errorf("faktory/client: push: %w", err)
	}
	cmd, err := protocol.NewJSONCommand(protocol.VerbPush, j)
	if err != nil {
		return "", err
	}
	err = c.transaction(ctx, func() error { return c.expectOK(cmd) })
	if err != nil {
		return "", fmt.Errorf("faktory/client: push: %w", err)
	}
	return j.JID, nil
}

// Fetch reserves the next job from the first non-empty queue, in the
// given order. It returns nil, nil when every queue is empty.
func (c *Client) Fetch(ctx context.Context, queues ...string) (*job.Job, error) {
	if len(queues) == 0 {
		return nil, fmt.Errorf("faktory/client: fetch: %w", faktory.ErrNoQueues)
	}
	cmd := protocol.NewCommand(protocol.VerbFetch, queues...)

	var j *job.Job
	err := c.transaction(ctx, func() error {
		rep, err := c.call(cmd)
		if err != nil {
			return err
		}
		switch rep.Kind {
		case protocol.KindNil:
			return nil
		case protocol.KindBulk:
			if len(rep.Bulk) == 0 {
				return nil
			}
			j = new(job.Job)
			return json.Unmarshal(rep.Bulk, j)
		default:
			return unexpected(cmd, rep)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("faktory/client: fetch: %w", err)
	}
	return j, nil
}

// Ack reports successful execution of jid.
func (c *Client) Ack(ctx context.Context, jid string) error {
	cmd, err := protocol.NewJSONCommand(protocol.VerbAck, map[string]string{"jid": jid})
	if err != nil {
		return err
	}
	if err := c.transaction(ctx, func() error { return c.expectOK(cmd) }); err != nil {
		return fmt.Errorf("faktory/client: ack: %w", err)
	}
	return nil
}

// Failure is the FAIL payload.
type Failure struct {
	JID       string   `json:"jid"`
	Message   string   `json:"message"`
	ErrorType string   `json:"errtype"`
	Backtrace []string `json:"backtrace,omitempty"`
}

// NewFailure describes cause for jid. The message is truncated to
// MaxFailureMessage characters.
func NewFailure(jid string, cause error, backtrace []string) Failure {
	msg := []rune(cause.Error())
	if len(msg) > MaxFailureMessage {
		msg = msg[:MaxFailureMessage]
	}
	return Failure{
		JID:       jid,
		Message:   string(msg),
		ErrorType: ErrorType(cause),
		Backtrace: backtrace,
	}
}

// ErrorType names the kind of err for the server's failure record. An
// error may name itself with an ErrorType() string method; otherwise the
// Go type of the innermost wrapped error is used.
func ErrorType(err error) string {
	var named interface{ ErrorType() string }
	if errors.As(err, &named) {
		return named.ErrorType()
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	return fmt.Sprintf("%T", err)
}

// Fail reports failed execution of jid.
func (c *Client) Fail(ctx context.Context, f Failure) error {
	cmd, err := protocol.NewJSONCommand(protocol.VerbFail, f)
	if err != nil {
		return err
	}
	if err := c.transaction(ctx, func() error { return c.expectOK(cmd) }); err != nil {
		return fmt.Errorf("faktory/client: fail: %w", err)
	}
	return nil
}

// BeatSignal is the server's answer to a heartbeat.
type BeatSignal string

const (
	// BeatNone means carry on.
	BeatNone BeatSignal = ""
	// BeatQuiet asks the process to stop fetching.
	BeatQuiet BeatSignal = "quiet"
	// BeatTerminate asks the process to shut down.
	BeatTerminate BeatSignal = "terminate"
)

type beatPayload struct {
	WID          string `json:"wid"`
	CurrentState string `json:"current_state,omitempty"`
	RSSKB        uint64 `json:"rss_kb,omitempty"`
}

// Beat sends a heartbeat for this worker process. state reports the
// process's current state ("quiet", "terminate" or "").
func (c *Client) Beat(ctx context.Context, state string) (BeatSignal, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	cmd, err := protocol.NewJSONCommand(protocol.VerbBeat, beatPayload{
		WID:          c.wid,
		CurrentState: state,
		RSSKB:        ms.Sys / 1024,
	})
	if err != nil {
		return BeatNone, err
	}

	var sig BeatSignal
	err = c.transaction(ctx, func() error {
		rep, err := c.call(cmd)
		if err != nil {
			return err
		}
		switch {
		case rep.IsOK():
			return nil
		case rep.Kind == protocol.KindBulk:
			var body struct {
				State BeatSignal `json:"state"`
			}
			if err := json.Unmarshal(rep.Bulk, &body); err != nil {
				return fmt.Errorf("decode beat reply: %w", err)
			}
			sig = body.State
			return nil
		default:
			return unexpected(cmd, rep)
		}
	})
	if err != nil {
		return BeatNone, fmt.Errorf("faktory/client: beat: %w", err)
	}
	return sig, nil
}

// Info returns the server's status document.
func (c *Client) Info(ctx context.Context) (map[string]any, error) {
	var info map[string]any
	err := c.bulkJSON(ctx, protocol.NewCommand(protocol.VerbInfo), &info)
	if err != nil {
		return nil, fmt.Errorf("faktory/client: info: %w", err)
	}
	return info, nil
}

// Flush deletes all data on the server. Meant for tests.
func (c *Client) Flush(ctx context.Context) error {
	cmd := protocol.NewCommand(protocol.VerbFlush)
	if err := c.transaction(ctx, func() error { return c.expectOK(cmd) }); err != nil {
		return fmt.Errorf("faktory/client: flush: %w", err)
	}
	return nil
}

// bulkJSON sends cmd and decodes a bulk reply into v. A nil reply leaves
// v untouched.
func (c *Client) bulkJSON(ctx context.Context, cmd protocol.Command, v any) error {
	return c.transaction(ctx, func() error {
		rep, err := c.call(cmd)
		if err != nil {
			return err
		}
		switch rep.Kind {
		case protocol.KindNil:
			return nil
		case protocol.KindBulk:
			return json.Unmarshal(rep.Bulk, v)
		default:
			return unexpected(cmd, rep)
		}
	})
}
