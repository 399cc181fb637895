package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zylisp/bridge/protocol"
)

func TestLines(t *testing.T) {
	tests := []struct {
		name string
		resp protocol.Response
		want []string
	}{
		{"value", protocol.Value{Value: "2", NS: "user"}, []string{"2"}},
		{"multi-line value", protocol.Value{Value: "{:a 1\n :b 2}"}, []string{"{:a 1", " :b 2}"}},
		{"out", protocol.Out{Text: "hello\nworld\n"}, []string{";hello", ";world"}},
		{"err", protocol.Err{Text: "bad\r\n"}, []string{";✖ bad"}},
		{"exception trace", protocol.Exception{Trace: "boom\n-- Trace --\nf x 1\n", Message: "boom\n"}, []string{";  boom", ";  -- Trace --", ";  f x 1"}},
		{"exception message only", protocol.Exception{Message: "boom\n"}, []string{";  boom"}},
		{"done", protocol.Status{Tokens: []string{"done"}}, []string{}},
		{"interrupted", protocol.Status{Tokens: []string{"done", "interrupted"}}, []string{";; interrupted"}},
		{"session created", protocol.SessionCreated{ID: "x"}, nil},
		{"end of stream", protocol.EndOfStream{}, nil},
		{"other", protocol.Other{Text: "tap"}, nil},
		{"empty out", protocol.Out{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Lines(tt.resp))
		})
	}
}

func TestPrefixTable(t *testing.T) {
	assert.Equal(t, ";✖ ", Prefix(KindError))
	assert.Equal(t, ";  ", Prefix(KindException))
	assert.Equal(t, ";", Prefix(KindOutput))
	assert.Equal(t, ";; ", Prefix(KindStatus))
	assert.Equal(t, "", Prefix(KindValue))
	assert.Equal(t, "exception", KindException.String())
}
