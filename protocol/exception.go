package protocol

import (
	"strconv"
	"strings"

	"olympos.io/encoding/edn"
)

// ExceptionReport is the textual rendering of a Clojure exception map
// (the shape produced by Throwable->map).
type ExceptionReport struct {
	Messages []string
	Frames   []string
}

// Message returns the cause messages, one per line.
func (r ExceptionReport) Message() string {
	return joinLines(r.Messages)
}

// Trace returns the stack frames, one per line.
func (r ExceptionReport) Trace() string {
	return joinLines(r.Frames)
}

// String renders the messages followed by the stack trace.
func (r ExceptionReport) String() string {
	var b strings.Builder
	b.WriteString(r.Message())
	if len(r.Frames) > 0 {
		b.WriteString("-- Trace --\n")
		b.WriteString(r.Trace())
	}
	return b.String()
}

func joinLines(lines []string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseException decodes an EDN exception document. The document may be
// tagged (#error {...}). Messages come from every :via entry carrying a
// :message, or from :cause when none does. Each :trace frame becomes one line
// of its symbol, string and integer tokens joined by spaces.
func ParseException(doc string) (ExceptionReport, error) {
	var v any
	if err := edn.Unmarshal([]byte(doc), &v); err != nil {
		return ExceptionReport{}, DecodeError("parse exception", err)
	}
	return ExceptionFromEDN(v)
}

// ExceptionFromEDN renders an already decoded exception map.
func ExceptionFromEDN(v any) (ExceptionReport, error) {
	var report ExceptionReport

	if tag, ok := v.(edn.Tag); ok {
		v = tag.Value
	}

	m, ok := v.(map[any]any)
	if !ok {
		return report, ProtocolError("parse exception", "exception is not a map: %T", v)
	}

	if via, ok := m[edn.Keyword("via")].([]any); ok {
		for _, cause := range via {
			cm, ok := cause.(map[any]any)
			if !ok {
				continue
			}
			if msg, ok := cm[edn.Keyword("message")].(string); ok {
				report.Messages = append(report.Messages, msg)
			}
		}
	}
	if len(report.Messages) == 0 {
		if cause, ok := m[edn.Keyword("cause")].(string); ok {
			report.Messages = append(report.Messages, cause)
		}
	}

	if trace, ok := m[edn.Keyword("trace")].([]any); ok {
		for _, frame := range trace {
			tokens, ok := frame.([]any)
			if !ok {
				continue
			}
			report.Frames = append(report.Frames, renderFrame(tokens))
		}
	}

	return report, nil
}

func renderFrame(tokens []any) string {
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		switch t := tok.(type) {
		case edn.Symbol:
			parts = append(parts, string(t))
		case string:
			parts = append(parts, t)
		case int64:
			parts = append(parts, strconv.FormatInt(t, 10))
		case int:
			parts = append(parts, strconv.Itoa(t))
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
