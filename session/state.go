package session

import "sync/atomic"

// State is the connection state.
type State int32

const (
	// Connecting covers dialect detection and the TCP dial.
	Connecting State = iota
	// Handshaking runs the dialect's session setup.
	Handshaking
	// Active accepts requests and displays responses.
	Active
	// Closing has sent or skipped Exit and is joining the receive worker.
	Closing
	// Closed has released the connection.
	Closed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Handshaking:
		return "handshaking"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// stateVar holds a State readable from any goroutine. Only the goroutine
// owning the session writes it.
type stateVar struct {
	v atomic.Int32
}

func (s *stateVar) load() State {
	return State(s.v.Load())
}

func (s *stateVar) store(st State) {
	s.v.Store(int32(st))
}
