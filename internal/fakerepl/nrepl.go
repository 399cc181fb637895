package fakerepl

import (
	"bufio"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/jackpal/bencode-go"
)

// Message is one bencode dictionary.
type Message = map[string]any

// NREPL answers bencode requests the way an nREPL server does.
type NREPL struct {
	// Eval scripts the replies to an eval op. Nil answers every eval with
	// value "nil" in namespace "user" followed by a done status.
	Eval func(code string) []Message

	mu       sync.Mutex
	session  string
	requests []Message
}

// ValueReply is an eval result.
func ValueReply(value, ns string) Message {
	return Message{"value": value, "ns": ns}
}

// StatusReply is a status message.
func StatusReply(tokens ...string) Message {
	list := make([]any, len(tokens))
	for i, t := range tokens {
		list[i] = t
	}
	return Message{"status": list}
}

// OutReply is captured stdout.
func OutReply(text string) Message {
	return Message{"out": text}
}

// ErrReply is captured stderr.
func ErrReply(text string) Message {
	return Message{"err": text}
}

// Requests returns the requests received so far.
func (n *NREPL) Requests() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Message, len(n.requests))
	copy(out, n.requests)
	return out
}

// SessionID returns the id handed out by the last clone op.
func (n *NREPL) SessionID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.session
}

// Serve reads requests until the client disconnects.
func (n *NREPL) Serve(conn net.Conn) {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		v, err := bencode.Decode(r)
		if err != nil {
			return
		}
		req, ok := v.(map[string]any)
		if !ok {
			return
		}

		n.mu.Lock()
		n.requests = append(n.requests, req)
		n.mu.Unlock()

		for _, reply := range n.handle(req) {
			if id, ok := req["id"]; ok {
				reply["id"] = id
			}
			if session, ok := req["session"]; ok {
				reply["session"] = session
			}
			if err := bencode.Marshal(w, reply); err != nil {
				slog.Debug("fake nrepl write failed", "error", err)
				return
			}
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

// handle dispatches on the op field.
func (n *NREPL) handle(req Message) []Message {
	op, _ := req["op"].(string)

	switch op {
	case "clone":
		id := uuid.NewString()
		n.mu.Lock()
		n.session = id
		n.mu.Unlock()
		return []Message{{"new-session": id, "status": []any{"done"}}}
	case "eval":
		code, _ := req["code"].(string)
		if n.Eval != nil {
			return n.Eval(code)
		}
		return []Message{ValueReply("nil", "user"), StatusReply("done")}
	case "interrupt":
		return []Message{StatusReply("interrupted"), StatusReply("done")}
	case "close":
		return []Message{StatusReply("done", "session-closed")}
	default:
		return []Message{StatusReply("error", "unknown-op", "done")}
	}
}
