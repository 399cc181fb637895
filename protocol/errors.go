package protocol

import (
	"errors"
	"fmt"
)

// ErrNoREPL is returned when nothing at an endpoint answers like a REPL.
var ErrNoREPL = errors.New("no REPL available at this endpoint")

// Kind classifies protocol errors.
type Kind int

const (
	// KindIO is a socket read or write failure.
	KindIO Kind = iota + 1

	// KindDecode is a malformed bencode or EDN payload.
	KindDecode

	// KindProtocol is a well-formed payload the bridge did not expect.
	KindProtocol

	// KindRemoteClosed is the server ending the session or the stream.
	KindRemoteClosed
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindDecode:
		return "decode"
	case KindProtocol:
		return "protocol"
	case KindRemoteClosed:
		return "remote closed"
	default:
		return "unknown"
	}
}

// Error is an error raised while talking to a REPL server.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IOError wraps a socket failure.
func IOError(op string, err error) error {
	return &Error{Kind: KindIO, Op: op, Err: err}
}

// DecodeError wraps a payload the codec could not decode.
func DecodeError(op string, err error) error {
	return &Error{Kind: KindDecode, Op: op, Err: err}
}

// ProtocolError reports an unexpected but well-formed message.
func ProtocolError(op string, format string, args ...any) error {
	return &Error{Kind: KindProtocol, Op: op, Err: fmt.Errorf(format, args...)}
}

// RemoteClosed reports the server ending the session.
func RemoteClosed(op string, reason string) error {
	return &Error{Kind: KindRemoteClosed, Op: op, Err: errors.New(reason)}
}

// IsKind reports whether err wraps an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind == kind
	}
	return false
}
