// Package client evaluates code on a REPL server one form at a time and
// collects everything the evaluation produced. It is the synchronous
// counterpart of the session package, meant for scripts and one-shot
// commands rather than editors.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zylisp/bridge/protocol"
	"github.com/zylisp/bridge/session"
	"github.com/zylisp/bridge/transport/tcp"
)

// ErrClosed is returned by Eval after Close.
var ErrClosed = errors.New("client is closed")

// Result is the outcome of one evaluation.
type Result struct {
	// Value is the printed result. Empty when the evaluation failed.
	Value string
	NS    string

	// Output and Error collect what the evaluation wrote to stdout and
	// stderr.
	Output string
	Error  string

	// Exception is the rendered exception, if the evaluation threw.
	Exception string

	// Status collects the status tokens seen, in order.
	Status []string
}

// Client is a connection used for one evaluation at a time.
type Client struct {
	conn     *tcp.Conn
	dialect  protocol.Dialect
	sender   protocol.Sender
	receiver protocol.Receiver

	mu     sync.Mutex
	closed bool
}

// Connect dials addr and performs the handshake. An empty dialect is
// detected first.
func Connect(ctx context.Context, addr string, dialect protocol.Dialect) (*Client, error) {
	if dialect == "" {
		detected, err := tcp.Detect(ctx, addr)
		if err != nil {
			return nil, err
		}
		dialect = detected
	}

	conn, err := tcp.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}

	c := &Client{conn: conn, dialect: dialect}
	var handshakeErr error
	c.withContext(ctx, func() {
		c.sender, c.receiver, handshakeErr = session.Handshake(dialect, conn.Reader(), conn.Writer())
	})
	if handshakeErr != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, handshakeErr
	}

	slog.Debug("Client connected", "addr", addr, "dialect", string(dialect), "session", c.sender.SessionID())
	return c, nil
}

// Dialect returns the dialect spoken by the server.
func (c *Client) Dialect() protocol.Dialect {
	return c.dialect
}

// SessionID returns the server session id.
func (c *Client) SessionID() string {
	return c.sender.SessionID()
}

// Eval sends code and reads responses until the evaluation completes: a done
// status on nREPL, a :ret message on pREPL. When ctx ends first, Eval
// returns ctx.Err() and the client should be closed.
func (c *Client) Eval(ctx context.Context, code string) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	req := protocol.Eval{Params: protocol.Params{protocol.Str("code"): protocol.Str(code)}}
	if err := c.sender.Send(req); err != nil {
		return nil, err
	}

	var (
		result *Result
		err    error
	)
	c.withContext(ctx, func() {
		result, err = c.collect()
	})
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return result, err
}

func (c *Client) collect() (*Result, error) {
	result := &Result{}
	lineDialect := c.dialect == protocol.DialectPREPL

	for {
		resp, err := c.receiver.Receive()
		if err != nil {
			return nil, err
		}

		switch r := resp.(type) {
		case protocol.Value:
			result.Value, result.NS = r.Value, r.NS
			if lineDialect {
				return result, nil
			}
		case protocol.Out:
			result.Output += r.Text
		case protocol.Err:
			result.Error += r.Text
		case protocol.Exception:
			result.Exception = r.Trace
			if lineDialect {
				return result, nil
			}
		case protocol.Status:
			result.Status = append(result.Status, r.Tokens...)
			if r.Has(protocol.StatusSessionClosed) {
				return nil, protocol.RemoteClosed("eval", "server closed the session")
			}
			if r.Has(protocol.StatusDone) {
				return result, nil
			}
		case protocol.EndOfStream:
			return nil, protocol.RemoteClosed("eval", "server closed the connection")
		default:
			slog.Debug("Ignoring response", "response", resp)
		}
	}
}

// withContext runs fn, expiring the connection deadline once ctx is done so
// blocked reads return.
func (c *Client) withContext(ctx context.Context, fn func()) {
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = c.conn.SetDeadline(time.Now())
	})

	fn()

	if !stop() {
		// The callback has started; its deadline must land before the reset.
		<-fired
	}
	_ = c.conn.SetDeadline(time.Time{})
}

// Close asks the server to end the session and closes the connection. It is
// safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.sender.Send(protocol.Exit{}); err != nil {
		slog.Debug("Failed to send exit", "error", err)
	}
	return c.conn.Close()
}
