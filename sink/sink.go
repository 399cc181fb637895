// Package sink renders decoded REPL responses for the user.
package sink

import (
	"strings"

	"github.com/zylisp/bridge/protocol"
)

// Sink receives, in order, a start marker, every decoded response and a
// stop marker. Calls come from a single goroutine.
type Sink interface {
	Start() error
	Show(resp protocol.Response) error
	Stop(reason string) error
}

// Kind selects the prefix of a rendered line.
type Kind int

const (
	KindError Kind = iota
	KindException
	KindOutput
	KindStatus
	KindValue
)

var prefixes = map[Kind]string{
	KindError:     ";✖ ",
	KindException: ";  ",
	KindOutput:    ";",
	KindStatus:    ";; ",
	KindValue:     "",
}

// Prefix returns the line prefix for k.
func Prefix(k Kind) string {
	return prefixes[k]
}

func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindException:
		return "exception"
	case KindOutput:
		return "output"
	case KindStatus:
		return "status"
	case KindValue:
		return "value"
	default:
		return "unknown"
	}
}

// KindOf reports the display kind of resp. Responses that are never shown,
// such as SessionCreated, EndOfStream and Other, report false.
func KindOf(resp protocol.Response) (Kind, bool) {
	switch resp.(type) {
	case protocol.Err:
		return KindError, true
	case protocol.Exception:
		return KindException, true
	case protocol.Out:
		return KindOutput, true
	case protocol.Status:
		return KindStatus, true
	case protocol.Value:
		return KindValue, true
	default:
		return 0, false
	}
}

// Lines renders resp as prefixed display lines. Status lines leave out the
// "done" token, so a plain done status renders nothing.
func Lines(resp protocol.Response) []string {
	kind, ok := KindOf(resp)
	if !ok {
		return nil
	}

	var text string
	switch r := resp.(type) {
	case protocol.Err:
		text = r.Text
	case protocol.Exception:
		text = r.Trace
		if text == "" {
			text = r.Message
		}
	case protocol.Out:
		text = r.Text
	case protocol.Value:
		text = r.Value
	case protocol.Status:
		tokens := make([]string, 0, len(r.Tokens))
		for _, t := range r.Tokens {
			if t != protocol.StatusDone {
				tokens = append(tokens, t)
			}
		}
		text = strings.Join(tokens, " ")
	}

	prefix := Prefix(kind)
	split := splitLines(text)
	out := make([]string, 0, len(split))
	for _, l := range split {
		out = append(out, prefix+l)
	}
	return out
}

// splitLines splits on "\n", drops a trailing empty line and strips "\r".
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
