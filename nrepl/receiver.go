package nrepl

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/jackpal/bencode-go"

	"github.com/zylisp/bridge/protocol"
)

// ThrowableKey carries the printed throwable when nREPL's caught middleware
// is active.
const ThrowableKey = "nrepl.middleware.caught/throwable"

// Receiver decodes bencode dictionaries into responses.
type Receiver struct {
	r         *bufio.Reader
	sessionID string
}

// NewReceiver returns a receiver reading from r.
func NewReceiver(r io.Reader) *Receiver {
	return &Receiver{r: bufio.NewReader(r)}
}

// SessionID returns the session recorded during the handshake.
func (r *Receiver) SessionID() string {
	return r.sessionID
}

// Receive blocks until one full bencode value has been read.
func (r *Receiver) Receive() (protocol.Response, error) {
	// A clean close between frames is the end of the stream. Anything that
	// breaks off inside a frame is a decode error.
	if _, err := r.r.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			slog.Debug("nREPL connection closed")
			return protocol.EndOfStream{}, nil
		}
		return nil, protocol.IOError("receive", err)
	}

	val, err := bencode.Decode(r.r)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return nil, protocol.IOError("receive", err)
		}
		return nil, protocol.DecodeError("receive", err)
	}

	return Classify(val)
}

// Classify turns a decoded bencode value into a response. Keys are probed in
// a fixed order: new-session, err, out, ex, status, value.
func Classify(val any) (protocol.Response, error) {
	msg, ok := val.(map[string]any)
	if !ok {
		return nil, protocol.ProtocolError("receive", "unexpected nREPL response: %v", val)
	}

	if s, ok := msg["new-session"].(string); ok {
		slog.Debug("nREPL session", "session", s)
		return protocol.SessionCreated{ID: s}, nil
	}
	if s, ok := msg["err"].(string); ok {
		return protocol.Err{Text: s}, nil
	}
	if s, ok := msg["out"].(string); ok {
		return protocol.Out{Text: s}, nil
	}
	if ex, ok := msg["ex"].(string); ok {
		return exception(ex, msg), nil
	}
	if list, ok := msg["status"].([]any); ok {
		tokens := make([]string, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok {
				tokens = append(tokens, s)
			}
		}
		return protocol.Status{Tokens: tokens}, nil
	}
	if value, ok := msg["value"].(string); ok {
		ns, ok := msg["ns"].(string)
		if !ok {
			return nil, protocol.ProtocolError("receive", "missing 'ns' in nREPL value response: %s", value)
		}
		return protocol.Value{Value: value, NS: ns}, nil
	}

	return nil, protocol.ProtocolError("receive", "unsupported nREPL response: %v", msg)
}

// exception builds an Exception from the ex class name, preferring the
// printed throwable when the server sent one.
func exception(ex string, msg map[string]any) protocol.Response {
	throwable, ok := msg[ThrowableKey].(string)
	if !ok {
		return protocol.Exception{Trace: ex}
	}

	report, err := protocol.ParseException(throwable)
	if err != nil {
		slog.Debug("Unreadable nREPL throwable", "error", err)
		return protocol.Exception{Trace: strings.TrimPrefix(throwable, "#error ")}
	}
	return protocol.Exception{Trace: report.String(), Message: report.Message()}
}
