package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// CommandError is a "-ERR message" reply: the server rejected the command.
type CommandError struct {
	Message string
}

func (e *CommandError) Error() string {
	return "protocol: server error: " + e.Message
}

// SoftError is a non-ERR error reply such as "-NOTUNIQUE Job not unique".
// It describes an outcome rather than a broken exchange.
type SoftError struct {
	Code    string
	Message string
}

func (e *SoftError) Error() string {
	return fmt.Sprintf("protocol: %s: %s", e.Code, e.Message)
}

// ParseError reports a reply line that does not follow the framing. The
// connection that produced it must be discarded.
type ParseError struct {
	Line string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("protocol: unparseable reply %q", e.Line)
}

// TransportError wraps a socket-level failure: a reset, an EOF, a broken
// pipe or a read timeout. These are the errors a connection may recover
// from by reconnecting.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("protocol: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a read or write timeout.
func (e *TransportError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

func transport(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// IsTransport reports whether err is a recoverable socket failure.
func IsTransport(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// IsTimeout reports whether err is a socket timeout.
func IsTimeout(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Timeout()
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
