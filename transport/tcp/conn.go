package tcp

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// Conn is a TCP connection to a REPL server, split into a read half owned by
// a receiver and a write half owned by a sender.
type Conn struct {
	conn      net.Conn
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to a REPL server at addr. A "tcp://" prefix is accepted.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", TrimScheme(addr))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to repl server: %w", err)
	}

	return &Conn{conn: conn}, nil
}

// NewConn wraps an established connection.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

// Reader returns the read half of the connection.
func (c *Conn) Reader() io.Reader {
	return c.conn
}

// Writer returns the write half of the connection.
func (c *Conn) Writer() io.Writer {
	return c.conn
}

// RemoteAddr returns the server address.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// SetDeadline sets the read and write deadline. A zero time clears it.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// Close closes both halves. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// TrimScheme strips an optional "tcp://" prefix from an address.
func TrimScheme(addr string) string {
	return strings.TrimPrefix(addr, "tcp://")
}
