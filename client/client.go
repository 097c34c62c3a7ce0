// Package client provides a connection to a Faktory server and a bounded
// pool of them.
//
// Usage:
//
//	c, err := client.Dial(ctx,
//	    client.WithURL("tcp://:secret@localhost:7419"),
//	)
//	defer c.Close()
//
//	jid, err := c.Push(ctx, job.New("SendEmail", "alice@example.com"))
//
// A Client is not safe for concurrent use by multiple goroutines in the
// sense of interleaving commands; each call holds the connection for one
// request/reply exchange. Share a Pool instead.
package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/xraph/faktory"
	"github.com/xraph/faktory/protocol"
)

// Client is one connection to a Faktory server.
type Client struct {
	rawURL      string
	addr        string
	password    string
	tlsConfig   *tls.Config
	wid         string
	labels      []string
	readTimeout time.Duration
	dialTimeout time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	conn     net.Conn
	rd       *bufio.Reader
	wr       *bufio.Writer
	greeting protocol.Greeting
}

// Dial resolves the server URL, connects and completes the handshake.
func Dial(ctx context.Context, opts ...Option) (*Client, error) {
	c, err := newClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("faktory/client: dial: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.open(ctx); err != nil {
		return nil, fmt.Errorf("faktory/client: dial: %w", err)
	}
	return c, nil
}

func newClient(opts ...Option) (*Client, error) {
	c := &Client{
		labels:      []string{"golang-" + runtime.Version()},
		readTimeout: 5 * time.Second,
		dialTimeout: 5 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	resolved, err := ResolveURL(c.rawURL)
	if err != nil {
		return nil, err
	}
	addr, err := parseURL(resolved)
	if err != nil {
		return nil, err
	}
	c.addr = addr.host
	if c.password == "" {
		c.password = addr.password
	}
	if addr.tls && c.tlsConfig == nil {
		host, _, _ := net.SplitHostPort(addr.host)
		c.tlsConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	return c, nil
}

// WID returns the worker identity sent in HELLO, or "" for a producer.
func (c *Client) WID() string { return c.wid }

// ServerVersion returns the protocol version announced by the server.
func (c *Client) ServerVersion() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.greeting.Version
}

// open dials the server and performs the handshake. c.mu must be held.
func (c *Client) open(ctx context.Context) error {
	d := net.Dialer{Timeout: c.dialTimeout, KeepAlive: 30 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return err
	}
	if c.tlsConfig != nil {
		tconn := tls.Client(conn, c.tlsConfig)
		if err := tconn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return fmt.Errorf("tls handshake: %w", err)
		}
		conn = tconn
	}

	dc := &protocol.DeadlineConn{Conn: conn, ReadTimeout: c.readTimeout}
	c.conn = conn
	c.rd = bufio.NewReader(dc)
	c.wr = bufio.NewWriter(dc)

	if err := c.handshake(); err != nil {
		c.closeConn()
		return err
	}
	return nil
}

func (c *Client) handshake() error {
	rep, err := protocol.ReadReply(c.rd)
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}
	if rep.Kind != protocol.KindSimple {
		return fmt.Errorf("unexpected greeting %q", rep.String())
	}
	g, err := protocol.ParseGreeting(rep.Text)
	if err != nil {
		return err
	}
	if g.Version > protocol.Version {
		c.logger.Warn("faktory server speaks a newer protocol",
			slog.Int("server_version", g.Version),
			slog.Int("client_version", protocol.Version),
		)
	}
	c.greeting = g

	hostname, _ := os.Hostname()
	hello := protocol.Hello{
		WID:      c.wid,
		Hostname: hostname,
		PID:      os.Getpid(),
		Labels:   c.labels,
		Version:  protocol.Version,
	}
	if g.Salt != "" {
		if c.password == "" {
			return faktory.ErrPasswordRequired
		}
		hash, err := protocol.HashPassword(c.password, g.Salt, g.Iterations)
		if err != nil {
			return err
		}
		hello.PwdHash = hash
	}

	cmd, err := protocol.NewJSONCommand(protocol.VerbHello, hello)
	if err != nil {
		return err
	}
	return c.expectOK(cmd)
}

// transaction runs fn against an open connection. A transport failure
// closes the socket, reopens it with a fresh handshake and runs fn once
// more; a second failure is returned. Cancelling ctx aborts blocking I/O
// and is never retried.
func (c *Client) transaction(ctx context.Context, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	err := c.attempt(ctx, fn)
	if err == nil || !protocol.IsTransport(err) || ctx.Err() != nil {
		return err
	}

	c.logger.DebugContext(ctx, "faktory connection lost, reconnecting",
		slog.String("addr", c.addr),
		slog.String("error", err.Error()),
	)
	return c.attempt(ctx, fn)
}

func (c *Client) attempt(ctx context.Context, fn func() error) error {
	if c.conn == nil {
		if err := c.open(ctx); err != nil {
			return err
		}
	}

	conn := c.conn
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	err := fn()
	if !stop() {
		c.closeConn()
		return ctx.Err()
	}

	var parseErr *protocol.ParseError
	if err != nil && (protocol.IsTransport(err) || errors.As(err, &parseErr)) {
		c.closeConn()
	}
	return err
}

// call writes cmd and reads one reply. c.mu must be held.
func (c *Client) call(cmd protocol.Command) (protocol.Reply, error) {
	if err := cmd.Write(c.wr); err != nil {
		return protocol.Reply{}, err
	}
	return protocol.ReadReply(c.rd)
}

func (c *Client) expectOK(cmd protocol.Command) error {
	rep, err := c.call(cmd)
	if err != nil {
		return err
	}
	if !rep.IsOK() {
		return unexpected(cmd, rep)
	}
	return nil
}

func unexpected(cmd protocol.Command, rep protocol.Reply) error {
	if rep.Kind == protocol.KindSoftError {
		return rep.Soft
	}
	return fmt.Errorf("unexpected reply to %s: %q", cmd.Verb, rep.String())
}

func (c *Client) closeConn() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn, c.rd, c.wr = nil, nil, nil
}

// Broken reports whether the socket has been discarded and will be
// reopened on next use.
func (c *Client) Broken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == nil
}

// Close sends END and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = protocol.NewCommand(protocol.VerbEnd).Write(c.wr)
	err := c.conn.Close()
	c.conn, c.rd, c.wr = nil, nil, nil
	return err
}
