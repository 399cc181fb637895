// Package session runs one bridged REPL connection: it detects the dialect,
// performs the backend handshake, forwards host requests to the server from
// the owning goroutine and drives the receive loop on a worker goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zylisp/bridge/nrepl"
	"github.com/zylisp/bridge/prepl"
	"github.com/zylisp/bridge/protocol"
	"github.com/zylisp/bridge/sink"
	"github.com/zylisp/bridge/transport/tcp"
)

// DiedReason is the shutdown marker shown when the session ends abnormally.
const DiedReason = "remote session appears to have died"

// Notifier receives the events the host must see.
type Notifier interface {
	// SessionStarted publishes the dialect and session id once the
	// handshake succeeds.
	SessionStarted(dialect protocol.Dialect, sessionID string) error
	// Echo shows a short message, such as the result of the last eval.
	Echo(text string) error
	// Fatal reports the error that ended the session.
	Fatal(err error) error
}

// Options configure Open.
type Options struct {
	// Addr is the server address, host:port with an optional tcp:// prefix.
	Addr string
	// Dialect forces a backend. Empty means detect it.
	Dialect protocol.Dialect
	Sink    sink.Sink
	// Notifier may be nil.
	Notifier Notifier
	// ProbeTimeout bounds detection. Zero leaves it to ctx.
	ProbeTimeout time.Duration
	// CloseTimeout bounds the wait for the server to close the session after
	// an exit. Zero waits indefinitely.
	CloseTimeout time.Duration
}

// Session is an established connection. Open returns it in the Active state.
type Session struct {
	opts     Options
	id       string
	dialect  protocol.Dialect
	conn     *tcp.Conn
	sender   protocol.Sender
	receiver protocol.Receiver
	state    stateVar
	log      *slog.Logger

	exitRequested atomic.Bool

	// pending is the last value not yet echoed. Only the worker touches it.
	pending string
}

// Open connects to opts.Addr and performs the backend handshake. On failure
// the connection is closed and no session is returned.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Sink == nil {
		return nil, errors.New("session: a display sink is required")
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}

	s := &Session{opts: opts, id: uuid.NewString()}
	s.log = slog.With("conn", s.id)
	s.setState(Connecting)

	dialect := opts.Dialect
	if dialect == "" {
		detected, err := s.detect(ctx)
		if err != nil {
			s.setState(Closed)
			return nil, err
		}
		dialect = detected
	}
	s.dialect = dialect
	s.log = s.log.With("dialect", string(dialect))

	conn, err := tcp.Dial(ctx, opts.Addr)
	if err != nil {
		s.setState(Closed)
		return nil, err
	}
	s.conn = conn

	s.setState(Handshaking)
	if err := s.handshake(ctx); err != nil {
		s.shutdownConn()
		return nil, err
	}

	s.setState(Active)
	s.log = s.log.With("session", s.sender.SessionID())

	if err := opts.Notifier.SessionStarted(dialect, s.sender.SessionID()); err != nil {
		s.shutdownConn()
		return nil, fmt.Errorf("failed to publish session id: %w", err)
	}
	if err := opts.Sink.Start(); err != nil {
		s.shutdownConn()
		return nil, fmt.Errorf("failed to start display sink: %w", err)
	}

	s.log.Info("REPL session started", "addr", conn.RemoteAddr())
	return s, nil
}

func (s *Session) detect(ctx context.Context) (protocol.Dialect, error) {
	if s.opts.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ProbeTimeout)
		defer cancel()
	}

	dialect, err := tcp.Detect(ctx, s.opts.Addr)
	if err != nil {
		return "", err
	}
	s.log.Debug("Detected REPL dialect", "dialect", string(dialect))
	return dialect, nil
}

// handshake runs the backend startup exchange. Cancelling ctx closes the
// connection, which unblocks the handshake reads.
func (s *Session) handshake(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })

	sender, receiver, err := Handshake(s.dialect, s.conn.Reader(), s.conn.Writer())
	if err == nil {
		s.sender, s.receiver = sender, receiver
	}

	if !stop() {
		return fmt.Errorf("handshake cancelled: %w", ctx.Err())
	}
	return err
}

// Handshake runs the startup exchange of dialect over r and w and returns the
// backend halves.
func Handshake(dialect protocol.Dialect, r io.Reader, w io.Writer) (protocol.Sender, protocol.Receiver, error) {
	switch dialect {
	case protocol.DialectNREPL:
		sender, receiver, err := nrepl.NewSenderReceiver(r, w)
		if err != nil {
			return nil, nil, err
		}
		return sender, receiver, nil
	case protocol.DialectPREPL:
		sender, receiver, err := prepl.NewSenderReceiver(r, w)
		if err != nil {
			return nil, nil, err
		}
		return sender, receiver, nil
	default:
		return nil, nil, protocol.ProtocolError("handshake", "unsupported dialect %q", dialect)
	}
}

// ID returns the connection id used in log records.
func (s *Session) ID() string {
	return s.id
}

// Dialect returns the backend in use.
func (s *Session) Dialect() protocol.Dialect {
	return s.dialect
}

// SessionID returns the server session id.
func (s *Session) SessionID() string {
	return s.sender.SessionID()
}

// State returns the current connection state.
func (s *Session) State() State {
	return s.state.load()
}

func (s *Session) setState(st State) {
	s.state.store(st)
	if s.log != nil {
		s.log.Debug("Session state changed", "state", st.String())
	}
}

// Run forwards requests to the server in order until the host sends Exit,
// requests is closed, ctx is cancelled or the worker stops. It then asks the
// server to close the session, waits for the worker and closes the
// connection. The returned error is the one reported to the Notifier.
func (s *Session) Run(ctx context.Context, requests <-chan protocol.Request) error {
	worker := StartWorker(s.receiveLoop)

	var sendErr error
loop:
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Context cancelled, closing session")
			break loop
		case <-worker.Done():
			break loop
		case req, ok := <-requests:
			if !ok {
				s.log.Debug("Host command stream ended")
				break loop
			}
			if _, exit := req.(protocol.Exit); exit {
				break loop
			}
			if err := s.sender.Send(req); err != nil {
				sendErr = err
				break loop
			}
		}
	}

	s.setState(Closing)
	err := s.close(worker, sendErr)
	s.shutdownConn()

	if err != nil {
		if protocol.IsKind(err, protocol.KindRemoteClosed) {
			s.log.Info("REPL session closed by server", "error", err)
		} else {
			s.log.Error("REPL session failed", "error", err)
		}
		if stopErr := s.opts.Sink.Stop(DiedReason); stopErr != nil {
			s.log.Warn("Failed to stop display sink", "error", stopErr)
		}
		if notifyErr := s.opts.Notifier.Fatal(err); notifyErr != nil {
			s.log.Warn("Failed to report fatal error", "error", notifyErr)
		}
		return err
	}

	s.log.Info("REPL session ended")
	if err := s.opts.Sink.Stop(""); err != nil {
		return fmt.Errorf("failed to stop display sink: %w", err)
	}
	return nil
}

// close sends Exit once, unless the connection already failed, and joins the
// worker.
func (s *Session) close(worker *Worker, sendErr error) error {
	if sendErr != nil {
		s.conn.Close()
		if err := worker.Wait(); err != nil {
			s.log.Debug("Worker stopped after send failure", "error", err)
		}
		return sendErr
	}

	select {
	case <-worker.Done():
		err := worker.Wait()
		if err != nil && !protocol.IsKind(err, protocol.KindRemoteClosed) {
			// The connection may still be open; release the server session.
			s.exitRequested.Store(true)
			if serr := s.sender.Send(protocol.Exit{}); serr != nil {
				s.log.Debug("Failed to send exit after worker stopped", "error", serr)
			}
		}
		return err
	default:
	}

	s.exitRequested.Store(true)
	if err := s.sender.Send(protocol.Exit{}); err != nil {
		s.conn.Close()
		if werr := worker.Wait(); werr != nil {
			s.log.Debug("Worker stopped after send failure", "error", werr)
		}
		return err
	}

	return s.join(worker)
}

func (s *Session) join(worker *Worker) error {
	if s.opts.CloseTimeout <= 0 {
		return worker.Wait()
	}

	timer := time.NewTimer(s.opts.CloseTimeout)
	defer timer.Stop()

	select {
	case <-worker.Done():
		return worker.Wait()
	case <-timer.C:
		s.log.Warn("Server did not close the session, closing connection", "timeout", s.opts.CloseTimeout)
		s.conn.Close()
		if err := worker.Wait(); err != nil {
			s.log.Debug("Worker stopped after forced close", "error", err)
		}
		return fmt.Errorf("server did not close the session within %s", s.opts.CloseTimeout)
	}
}

func (s *Session) shutdownConn() {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.log.Debug("Error closing connection", "error", err)
		}
	}
	s.setState(Closed)
}

// receiveLoop reads responses until the session ends, showing each one and
// tracking the value to echo when its evaluation completes.
func (s *Session) receiveLoop() error {
	for {
		resp, err := s.receiver.Receive()
		if err != nil {
			return err
		}
		s.log.Debug("Received response", "type", fmt.Sprintf("%T", resp))

		if err := s.opts.Sink.Show(resp); err != nil {
			return fmt.Errorf("display sink failed: %w", err)
		}

		switch r := resp.(type) {
		case protocol.Value:
			s.pending = r.Value
		case protocol.Err:
			s.pending = ""
			text := strings.ReplaceAll(strings.TrimRight(r.Text, "\n"), "\n", " ")
			if err := s.echo("ERROR: " + text); err != nil {
				return err
			}
		case protocol.Exception:
			s.pending = ""
		case protocol.Status:
			if r.Has(protocol.StatusDone) && s.pending != "" {
				if err := s.echo(s.pending); err != nil {
					return err
				}
				s.pending = ""
			}
			if r.Has(protocol.StatusSessionClosed) {
				return s.ended("server closed the session")
			}
		case protocol.EndOfStream:
			return s.ended("server closed the connection")
		}
	}
}

func (s *Session) echo(text string) error {
	if err := s.opts.Notifier.Echo(text); err != nil {
		return fmt.Errorf("host echo failed: %w", err)
	}
	return nil
}

// ended is the end of the receive loop. It is a normal shutdown only when the
// host asked for it.
func (s *Session) ended(reason string) error {
	if s.exitRequested.Load() {
		s.log.Debug("Session closed after exit", "reason", reason)
		return nil
	}
	return protocol.RemoteClosed("receive", reason)
}

type nopNotifier struct{}

func (nopNotifier) SessionStarted(protocol.Dialect, string) error { return nil }
func (nopNotifier) Echo(string) error                             { return nil }
func (nopNotifier) Fatal(error) error                             { return nil }
