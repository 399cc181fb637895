// Package prepl talks to Clojure socket pREPL servers, which read source
// text and answer with one EDN map per line.
package prepl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"olympos.io/encoding/edn"

	"github.com/zylisp/bridge/protocol"
)

// DefaultSessionID stands in for a session id; pREPL has no sessions.
const DefaultSessionID = "prepl_default_session"

// QuitToken asks the server to close the connection.
const QuitToken = ":repl/quit"

// disableNamespaceMaps keeps printed maps readable by the EDN reader.
const disableNamespaceMaps = "(set! *print-namespace-maps* false)"

// Sender writes evaluable source text.
type Sender struct {
	w         *bufio.Writer
	sessionID string
}

// NewSender returns a sender writing to w.
func NewSender(w io.Writer) *Sender {
	return &Sender{w: bufio.NewWriter(w), sessionID: DefaultSessionID}
}

// SessionID returns DefaultSessionID.
func (s *Sender) SessionID() string {
	return s.sessionID
}

// Send writes the code of an Eval followed by a newline, or the quit token
// for an Exit. pREPL has no session, clone or interrupt operations, so other
// requests are ignored.
func (s *Sender) Send(req protocol.Request) error {
	switch r := req.(type) {
	case protocol.Eval:
		code, ok := r.Params.Get("code")
		if !ok || code.IsInt() {
			slog.Debug("Ignoring pREPL eval without code")
			return nil
		}
		slog.Debug("Sending code to pREPL", "code", code.String())
		return s.writeLine(code.String())
	case protocol.Exit:
		slog.Debug("Sending exit to pREPL")
		return s.writeLine(QuitToken)
	default:
		slog.Debug("Request not supported by pREPL", "request", fmt.Sprintf("%T", req))
	}
	return nil
}

func (s *Sender) writeLine(text string) error {
	if _, err := s.w.WriteString(text + "\n"); err != nil {
		return protocol.IOError("send", err)
	}
	if err := s.w.Flush(); err != nil {
		return protocol.IOError("send", err)
	}
	return nil
}

// Receiver reads one EDN map per line.
type Receiver struct {
	r         *bufio.Reader
	sessionID string
}

// NewReceiver returns a receiver reading from r.
func NewReceiver(r io.Reader) *Receiver {
	return &Receiver{r: bufio.NewReader(r), sessionID: DefaultSessionID}
}

// SessionID returns DefaultSessionID.
func (r *Receiver) SessionID() string {
	return r.sessionID
}

// Receive reads and decodes one line.
func (r *Receiver) Receive() (protocol.Response, error) {
	line, err := r.r.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return nil, protocol.IOError("receive", err)
		}
		if line == "" {
			slog.Debug("pREPL connection closed")
			return protocol.EndOfStream{}, nil
		}
	}

	return ParseLine(line)
}

// ParseLine decodes one pREPL message. Blank lines, malformed EDN, values
// that are not maps and maps without a :tag are decode errors.
func ParseLine(line string) (protocol.Response, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, protocol.DecodeError("receive", errors.New("empty pREPL line"))
	}

	var v any
	if err := edn.Unmarshal([]byte(line), &v); err != nil {
		return nil, protocol.DecodeError("receive", err)
	}
	msg, ok := v.(map[any]any)
	if !ok {
		return nil, protocol.DecodeError("receive", fmt.Errorf("pREPL message is not a map: %s", line))
	}

	tag, ok := msg[edn.Keyword("tag")]
	if !ok {
		return nil, protocol.DecodeError("receive", fmt.Errorf("pREPL message has no :tag: %s", line))
	}
	kw, ok := tag.(edn.Keyword)
	if !ok {
		return protocol.Other{Text: fmt.Sprint(tag)}, nil
	}

	switch string(kw) {
	case "ret":
		return ret(msg), nil
	case "out":
		return protocol.Out{Text: str(msg, "val")}, nil
	case "err":
		return protocol.Err{Text: str(msg, "val")}, nil
	default:
		return protocol.Other{Text: string(kw)}, nil
	}
}

// ret handles both io-prepl, which prints :val to a string, and plain prepl,
// which sends :val as data.
func ret(msg map[any]any) protocol.Response {
	raw, present := msg[edn.Keyword("val")]

	if exception, _ := msg[edn.Keyword("exception")].(bool); exception {
		var (
			report protocol.ExceptionReport
			err    error
		)
		if doc, ok := raw.(string); ok {
			report, err = protocol.ParseException(doc)
		} else {
			report, err = protocol.ExceptionFromEDN(raw)
		}
		if err != nil {
			slog.Debug("Unreadable pREPL exception", "error", err)
			return protocol.Exception{Trace: text(raw, present)}
		}
		return protocol.Exception{Trace: report.String(), Message: report.Message()}
	}

	ms, _ := msg[edn.Keyword("ms")].(int64)
	return protocol.Value{
		Value:   text(raw, present),
		NS:      str(msg, "ns"),
		Elapsed: ms,
		Form:    str(msg, "form"),
	}
}

// str returns a string field, or "" when it is absent or not a string.
func str(msg map[any]any, key string) string {
	s, _ := msg[edn.Keyword(key)].(string)
	return s
}

// text prints a field value. Strings are taken as is; other data is printed
// back to EDN.
func text(v any, present bool) string {
	if !present {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := edn.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// NewSenderReceiver prepares a pREPL connection. The namespace map toggle is
// written as raw code and its single reply line is discarded unchecked.
func NewSenderReceiver(r io.Reader, w io.Writer) (*Sender, *Receiver, error) {
	sender := NewSender(w)
	receiver := NewReceiver(r)

	slog.Debug("Preparing pREPL connection")

	if err := sender.writeLine(disableNamespaceMaps); err != nil {
		return nil, nil, err
	}
	if _, err := receiver.r.ReadString('\n'); err != nil {
		return nil, nil, protocol.IOError("handshake", err)
	}

	return sender, receiver, nil
}
