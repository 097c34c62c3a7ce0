package protocol

import (
	"net"
	"time"
)

// DeadlineConn re-arms the socket deadline before every Read and Write,
// so the timeout bounds each socket operation rather than a whole command.
type DeadlineConn struct {
	net.Conn
	ReadTimeout time.Duration
}

func (c *DeadlineConn) Read(p []byte) (int, error) {
	if c.ReadTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.ReadTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *DeadlineConn) Write(p []byte) (int, error) {
	if c.ReadTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.ReadTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}
