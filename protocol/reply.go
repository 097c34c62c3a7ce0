package protocol

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Kind identifies the framing of a reply.
type Kind int

const (
	// KindSimple is a "+text" status line.
	KindSimple Kind = iota + 1
	// KindBulk is a "$N" length-prefixed payload.
	KindBulk
	// KindNil is a "$-1" bulk reply.
	KindNil
	// KindSoftError is a "-CODE message" line with a code other than ERR.
	KindSoftError
)

// Reply is a decoded server response.
type Reply struct {
	Kind Kind
	// Text holds the status text of a simple reply.
	Text string
	// Bulk holds the payload of a bulk reply. It is empty, never nil,
	// for "$0".
	Bulk []byte
	// Soft holds the code and message of a soft error reply.
	Soft *SoftError
}

// IsOK reports whether the reply is the "+OK" status.
func (r Reply) IsOK() bool {
	return r.Kind == KindSimple && r.Text == "OK"
}

// String returns the reply payload as a string. Nil replies are "".
func (r Reply) String() string {
	switch r.Kind {
	case KindSimple:
		return r.Text
	case KindBulk:
		return string(r.Bulk)
	default:
		return ""
	}
}

// ReadReply decodes a single reply from r.
//
// "-ERR" replies are returned as a *CommandError. Other error codes are
// returned as data with Kind KindSoftError. An unrecognized leading byte
// yields a *ParseError, after which the connection is no longer in a
// known state.
func ReadReply(r *bufio.Reader) (Reply, error) {
	line, err := readLine(r)
	if err != nil {
		return Reply{}, err
	}
	if line == "" {
		return Reply{}, &ParseError{Line: line}
	}

	switch line[0] {
	case '+':
		return Reply{Kind: KindSimple, Text: strings.TrimSpace(line[1:])}, nil
	case '-':
		code, msg, _ := strings.Cut(line[1:], " ")
		if code == "ERR" {
			return Reply{}, &CommandError{Message: msg}
		}
		return Reply{Kind: KindSoftError, Soft: &SoftError{Code: code, Message: msg}}, nil
	case '$':
		n, convErr := strconv.Atoi(line[1:])
		if convErr != nil || n < -1 {
			return Reply{}, &ParseError{Line: line}
		}
		if n == -1 {
			return Reply{Kind: KindNil}, nil
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Reply{}, transport("read", err)
		}
		// The payload is followed by its own line terminator.
		if _, err := readLine(r); err != nil {
			return Reply{}, err
		}
		return Reply{Kind: KindBulk, Bulk: buf}, nil
	default:
		return Reply{}, &ParseError{Line: line}
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", transport("read", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
