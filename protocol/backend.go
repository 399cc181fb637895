package protocol

import (
	"fmt"
	"strings"
)

// Dialect identifies the wire protocol a REPL server speaks.
type Dialect string

const (
	// DialectNREPL is the bencode framed dialect of nREPL servers.
	DialectNREPL Dialect = "nrepl"

	// DialectPREPL is the newline delimited EDN dialect of socket pREPL servers.
	DialectPREPL Dialect = "prepl"
)

// ParseDialect parses a dialect name. The empty string and "auto" return the
// empty Dialect, meaning the dialect should be detected.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return "", nil
	case "nrepl":
		return DialectNREPL, nil
	case "prepl":
		return DialectPREPL, nil
	default:
		return "", fmt.Errorf("unknown dialect: %s", name)
	}
}

// Sender writes requests to a REPL server. A Sender owns the write half of
// the connection and must only be used from one goroutine.
type Sender interface {
	// Send encodes and flushes one request.
	Send(req Request) error

	// SessionID returns the session used for outgoing requests.
	SessionID() string
}

// Receiver reads responses from a REPL server. A Receiver owns the read half
// of the connection and must only be used from one goroutine.
type Receiver interface {
	// Receive blocks until one full message is decoded.
	// A closed connection is reported as EndOfStream, not as an error.
	Receive() (Response, error)

	// SessionID returns the session recorded during the handshake.
	SessionID() string
}
