package client

import (
	"crypto/tls"
	"log/slog"
	"time"
)

// Option configures a Client.
type Option func(*Client)

// WithURL sets the server URL. Without it the URL is resolved from the
// environment.
func WithURL(url string) Option {
	return func(c *Client) { c.rawURL = url }
}

// WithPassword sets the server password, overriding one in the URL.
func WithPassword(password string) Option {
	return func(c *Client) { c.password = password }
}

// WithWID identifies the connection as belonging to a worker process.
// Producer-only connections omit it.
func WithWID(wid string) Option {
	return func(c *Client) { c.wid = wid }
}

// WithLabels sets the labels sent in HELLO.
func WithLabels(labels ...string) Option {
	return func(c *Client) {
		if len(labels) > 0 {
			c.labels = labels
		}
	}
}

// WithReadTimeout bounds every socket read and write.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) { c.readTimeout = d }
}

// WithDialTimeout bounds connection establishment.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// WithTLSConfig sets the TLS configuration. It is used even when the URL
// scheme is plain tcp.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) { c.tlsConfig = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}
