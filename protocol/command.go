// Package protocol implements the Faktory wire protocol: a line-oriented
// text protocol where the client writes one command per line and reads
// back one reply in a RESP-like framing.
package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
)

// Verb names a protocol command.
type Verb string

// ── Well-known verbs ────────────────────────────────

const (
	VerbHello Verb = "HELLO"
	VerbPush  Verb = "PUSH"
	VerbFetch Verb = "FETCH"
	VerbAck   Verb = "ACK"
	VerbFail  Verb = "FAIL"
	VerbBeat  Verb = "BEAT"
	VerbInfo  Verb = "INFO"
	VerbFlush Verb = "FLUSH"
	VerbEnd   Verb = "END"
	VerbBatch Verb = "BATCH"
	VerbTrack Verb = "TRACK"
)

// Subcommands of BATCH and TRACK.
const (
	BatchNew    = "NEW"
	BatchOpen   = "OPEN"
	BatchCommit = "COMMIT"
	BatchStatus = "STATUS"

	TrackGet = "GET"
	TrackSet = "SET"
)

// Command is a single request line.
type Command struct {
	Verb Verb
	Args []string
}

// NewCommand builds a command from plain string arguments.
func NewCommand(verb Verb, args ...string) Command {
	return Command{Verb: verb, Args: args}
}

// NewJSONCommand builds a command whose trailing argument is v encoded
// as JSON. Leading plain arguments (subcommands, IDs) come first.
func NewJSONCommand(verb Verb, v any, args ...string) (Command, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Command{}, fmt.Errorf("protocol: encode %s payload: %w", verb, err)
	}
	return Command{Verb: verb, Args: append(args, string(data))}, nil
}

// String renders the command without its line terminator.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return string(c.Verb)
	}
	return string(c.Verb) + " " + strings.Join(c.Args, " ")
}

// Write encodes the command onto w and flushes it.
func (c Command) Write(w *bufio.Writer) error {
	if _, err := w.WriteString(c.String()); err != nil {
		return transport("write", err)
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return transport("write", err)
	}
	if err := w.Flush(); err != nil {
		return transport("write", err)
	}
	return nil
}
