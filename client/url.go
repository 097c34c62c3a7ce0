package client

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/xraph/faktory"
)

// DefaultURL is used when neither an explicit URL nor the environment
// names a server.
const DefaultURL = "tcp://localhost:7419"

const defaultPort = "7419"

// ResolveURL picks the server URL: explicit if non-empty, else the
// variable named by FAKTORY_PROVIDER, else FAKTORY_URL, else DefaultURL.
// FAKTORY_PROVIDER holds a variable name; a value containing ":" is
// rejected since it is almost certainly a URL put in the wrong place.
func ResolveURL(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if provider := os.Getenv("FAKTORY_PROVIDER"); provider != "" {
		if strings.Contains(provider, ":") {
			return "", faktory.ErrInvalidProvider
		}
		if v := os.Getenv(provider); v != "" {
			return v, nil
		}
	}
	if v := os.Getenv("FAKTORY_URL"); v != "" {
		return v, nil
	}
	return DefaultURL, nil
}

type serverAddr struct {
	host     string
	password string
	tls      bool
}

func parseURL(raw string) (serverAddr, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return serverAddr{}, fmt.Errorf("parse url: %w", err)
	}

	var addr serverAddr
	switch u.Scheme {
	case "tcp":
	case "tcp+tls":
		addr.tls = true
	default:
		return serverAddr{}, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	host, port := u.Hostname(), u.Port()
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = defaultPort
	}
	addr.host = net.JoinHostPort(host, port)

	if u.User != nil {
		addr.password, _ = u.User.Password()
	}
	return addr, nil
}
