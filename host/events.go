package host

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/zylisp/bridge/protocol"
)

// Event names.
const (
	EventSession = "session"
	EventEcho    = "echo"
	EventFatal   = "fatal"
)

// Event is one line of the event stream.
type Event struct {
	Event   string `json:"event"`
	Dialect string `json:"dialect,omitempty"`
	Session string `json:"session,omitempty"`
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Events writes host notifications as JSON lines. It is safe for concurrent
// use.
type Events struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

// NewEvents returns an event writer on w.
func NewEvents(w io.Writer) *Events {
	return &Events{encoder: json.NewEncoder(w)}
}

// SessionStarted reports the dialect and session id of a new session.
func (e *Events) SessionStarted(dialect protocol.Dialect, sessionID string) error {
	return e.write(Event{Event: EventSession, Dialect: string(dialect), Session: sessionID})
}

// Echo sends text for the host to show in its echo area.
func (e *Events) Echo(text string) error {
	return e.write(Event{Event: EventEcho, Text: text})
}

// Fatal reports the error that ended the session.
func (e *Events) Fatal(err error) error {
	return e.write(Event{Event: EventFatal, Error: err.Error()})
}

func (e *Events) write(ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encoder.Encode(ev)
}
