package protocol

import (
	"fmt"
	"strconv"
)

// paramKind tags the value held by a Param.
type paramKind uint8

const (
	paramStr paramKind = iota
	paramInt
)

// Param is a request payload value: either a string or a 32-bit signed integer.
// Params are comparable, so they can be used as map keys.
type Param struct {
	kind paramKind
	str  string
	num  int32
}

// Str returns a string Param.
func Str(s string) Param {
	return Param{kind: paramStr, str: s}
}

// Int returns an integer Param.
func Int(i int32) Param {
	return Param{kind: paramInt, num: i}
}

// IsInt reports whether the Param holds an integer.
func (p Param) IsInt() bool {
	return p.kind == paramInt
}

// AsString returns the string held by the Param and whether it is a string Param.
func (p Param) AsString() (string, bool) {
	return p.str, p.kind == paramStr
}

// AsInt returns the integer held by the Param and whether it is an integer Param.
func (p Param) AsInt() (int32, bool) {
	return p.num, p.kind == paramInt
}

// String renders the Param as text. Integers are rendered in decimal.
func (p Param) String() string {
	if p.kind == paramInt {
		return strconv.FormatInt(int64(p.num), 10)
	}
	return p.str
}

// GoString makes Params readable in %#v output and test failures.
func (p Param) GoString() string {
	if p.kind == paramInt {
		return fmt.Sprintf("protocol.Int(%d)", p.num)
	}
	return fmt.Sprintf("protocol.Str(%q)", p.str)
}

// Params is a request payload.
type Params map[Param]Param

// Get looks up a string key.
func (p Params) Get(key string) (Param, bool) {
	v, ok := p[Str(key)]
	return v, ok
}

// Clone returns a shallow copy of the payload. Senders add their bookkeeping
// keys to the copy, never to the caller's map.
func (p Params) Clone() Params {
	out := make(Params, len(p)+3)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Request is a command sent to a REPL server. The concrete types are
// Eval, Interrupt, NewSession, DisableNamespaceMaps and Exit.
type Request interface {
	request()
}

// Eval asks the server to evaluate the "code" entry of Params.
type Eval struct {
	Params Params
}

// Interrupt asks the server to interrupt a running evaluation.
type Interrupt struct {
	Params Params
}

// NewSession asks the server to open a new session.
type NewSession struct{}

// DisableNamespaceMaps turns off namespaced map printing on the server so
// replies stay readable by plain EDN readers.
type DisableNamespaceMaps struct{}

// Exit asks the server to close the session.
type Exit struct{}

func (Eval) request()                 {}
func (Interrupt) request()            {}
func (NewSession) request()           {}
func (DisableNamespaceMaps) request() {}
func (Exit) request()                 {}

// Response is one decoded server message. The concrete types are Value, Err,
// Out, Exception, Status, SessionCreated, EndOfStream and Other.
type Response interface {
	response()
}

// Value is an evaluation result.
type Value struct {
	Value   string
	NS      string
	Elapsed int64 // milliseconds, zero when the dialect does not report it
	Form    string
}

// Err is text the evaluation wrote to stderr.
type Err struct {
	Text string
}

// Out is text the evaluation wrote to stdout.
type Out struct {
	Text string
}

// Exception is an evaluation failure.
type Exception struct {
	Trace   string
	Message string
}

// Status carries lifecycle tokens such as "done", "interrupted" or
// "session-closed".
type Status struct {
	Tokens []string
}

// Has reports whether token is one of the status tokens.
func (s Status) Has(token string) bool {
	for _, t := range s.Tokens {
		if t == token {
			return true
		}
	}
	return false
}

// SessionCreated carries the id of a session opened by the server.
type SessionCreated struct {
	ID string
}

// EndOfStream is reported once the server closes the connection.
type EndOfStream struct{}

// Other is a well-formed message the bridge does not interpret.
type Other struct {
	Text string
}

func (Value) response()          {}
func (Err) response()            {}
func (Out) response()            {}
func (Exception) response()      {}
func (Status) response()         {}
func (SessionCreated) response() {}
func (EndOfStream) response()    {}
func (Other) response()          {}

// Standard status tokens.
const (
	StatusDone          = "done"
	StatusSessionClosed = "session-closed"
	StatusInterrupted   = "interrupted"
)
