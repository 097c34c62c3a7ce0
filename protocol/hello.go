package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Version is the protocol version this package speaks.
const Version = 2

// Greeting is the payload of the server's "+HI {...}" line.
type Greeting struct {
	Version    int    `json:"v"`
	Salt       string `json:"s,omitempty"`
	Iterations int    `json:"i,omitempty"`
}

// ParseGreeting decodes the text of a "+HI" reply.
func ParseGreeting(text string) (Greeting, error) {
	rest, ok := strings.CutPrefix(text, "HI ")
	if !ok {
		return Greeting{}, &ParseError{Line: "+" + text}
	}
	var g Greeting
	if err := json.Unmarshal([]byte(rest), &g); err != nil {
		return Greeting{}, fmt.Errorf("protocol: decode greeting: %w", err)
	}
	if g.Salt != "" && g.Iterations == 0 {
		g.Iterations = 1
	}
	return g, nil
}

// Hello is the client's HELLO payload.
type Hello struct {
	WID      string   `json:"wid,omitempty"`
	Hostname string   `json:"hostname"`
	PID      int      `json:"pid"`
	Labels   []string `json:"labels"`
	Version  int      `json:"v"`
	PwdHash  string   `json:"pwdhash,omitempty"`
}

// HashPassword computes the handshake password hash: SHA-256 applied to
// password+salt, then to the raw digest, iterations times in total, and
// hex-encoded at the end.
func HashPassword(password, salt string, iterations int) (string, error) {
	if iterations < 1 {
		return "", fmt.Errorf("protocol: invalid hash iterations %d", iterations)
	}
	sum := sha256.Sum256([]byte(password + salt))
	for i := 1; i < iterations; i++ {
		sum = sha256.Sum256(sum[:])
	}
	return hex.EncodeToString(sum[:]), nil
}
