package nrepl

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"strconv"

	"github.com/jackpal/bencode-go"

	"github.com/zylisp/bridge/protocol"
)

// DisableNamespaceMapsCode is evaluated during the handshake.
const DisableNamespaceMapsCode = "(set! *print-namespace-maps* false)"

// Wire keys.
const (
	keyOp          = "op"
	keyID          = "id"
	keySession     = "session"
	keyCode        = "code"
	keyInterruptID = "interrupt-id"
)

// Op names.
const (
	opClone     = "clone"
	opEval      = "eval"
	opClose     = "close"
	opInterrupt = "interrupt"
)

// Sender encodes requests as bencode dictionaries.
type Sender struct {
	w         *bufio.Writer
	sessionID string
	counter   uint64
	lastEval  string
}

// NewSender returns a sender writing to w. The session id is set by the
// handshake.
func NewSender(w io.Writer) *Sender {
	return &Sender{w: bufio.NewWriter(w)}
}

// SessionID returns the session attached to outgoing requests.
func (s *Sender) SessionID() string {
	return s.sessionID
}

// LastEvalID returns the id of the most recent eval request, or "" if none
// was sent.
func (s *Sender) LastEvalID() string {
	return s.lastEval
}

// Send encodes req, writes it and flushes. The request counter advances only
// when the flush succeeds.
func (s *Sender) Send(req protocol.Request) error {
	id := strconv.FormatUint(s.counter, 10)
	params := s.params(req)

	if s.sessionID != "" {
		params[protocol.Str(keySession)] = protocol.Str(s.sessionID)
	}
	params[protocol.Str(keyID)] = protocol.Str(id)

	slog.Debug("Sending nREPL request", "op", params[protocol.Str(keyOp)].String(), "id", id)

	dict, err := toDict(params)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, dict); err != nil {
		return protocol.ProtocolError("send", "failed to encode request: %v", err)
	}
	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return protocol.IOError("send", err)
	}
	if err := s.w.Flush(); err != nil {
		return protocol.IOError("send", err)
	}

	if _, ok := req.(protocol.Eval); ok {
		s.lastEval = id
	}
	s.counter++
	return nil
}

// params maps a request to its op and payload. The caller's payload is
// copied, never modified.
func (s *Sender) params(req protocol.Request) protocol.Params {
	switch r := req.(type) {
	case protocol.NewSession:
		return protocol.Params{protocol.Str(keyOp): protocol.Str(opClone)}
	case protocol.DisableNamespaceMaps:
		return protocol.Params{
			protocol.Str(keyOp):   protocol.Str(opEval),
			protocol.Str(keyCode): protocol.Str(DisableNamespaceMapsCode),
		}
	case protocol.Eval:
		params := r.Params.Clone()
		params[protocol.Str(keyOp)] = protocol.Str(opEval)
		return params
	case protocol.Interrupt:
		params := r.Params.Clone()
		params[protocol.Str(keyOp)] = protocol.Str(opInterrupt)
		if _, ok := params.Get(keyInterruptID); !ok && s.lastEval != "" {
			params[protocol.Str(keyInterruptID)] = protocol.Str(s.lastEval)
		}
		return params
	}

	// protocol.Exit
	return protocol.Params{protocol.Str(keyOp): protocol.Str(opClose)}
}

// toDict converts a payload to a bencode dictionary. Dictionary keys are
// always strings; integer keys are rejected rather than rendered in decimal,
// where they could collide with a string key of the same text.
func toDict(params protocol.Params) (map[string]any, error) {
	dict := make(map[string]any, len(params))
	for k, v := range params {
		if i, ok := k.AsInt(); ok {
			return nil, protocol.ProtocolError("send", "integer payload key %d not supported by nREPL", i)
		}
		if i, ok := v.AsInt(); ok {
			dict[k.String()] = int64(i)
			continue
		}
		dict[k.String()] = v.String()
	}
	return dict, nil
}
