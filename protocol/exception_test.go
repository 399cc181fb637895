package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"olympos.io/encoding/edn"
)

func TestParseExceptionMessageThenTrace(t *testing.T) {
	doc := `{:via [{:type clojure.lang.ExceptionInfo :message "boom"}] :trace [[sym1 "file.ext" 42]]}`

	report, err := ParseException(doc)
	require.NoError(t, err)

	assert.Equal(t, "boom\n", report.Message())
	assert.Equal(t, "sym1 file.ext 42\n", report.Trace())

	lines := strings.Split(report.String(), "\n")
	boom := indexOf(lines, "boom")
	frame := indexOf(lines, "sym1 file.ext 42")
	require.NotEqual(t, -1, boom)
	require.NotEqual(t, -1, frame)
	assert.Less(t, boom, frame)
}

func TestParseExceptionMultipleCauses(t *testing.T) {
	doc := `{:via [{:message "outer"} {:type java.lang.ArithmeticException} {:message "inner"}]
	         :trace [[clojure.lang.Numbers divide "Numbers.java" 188]
	                 [user$eval1 invokeStatic "NO_SOURCE_FILE" 1]
	                 :not-a-frame]}`

	report, err := ParseException(doc)
	require.NoError(t, err)

	assert.Equal(t, []string{"outer", "inner"}, report.Messages)
	assert.Equal(t, []string{
		"clojure.lang.Numbers divide Numbers.java 188",
		"user$eval1 invokeStatic NO_SOURCE_FILE 1",
	}, report.Frames)
}

func TestParseExceptionTaggedWithCause(t *testing.T) {
	doc := `#error {:cause "Divide by zero" :via [{:type java.lang.ArithmeticException}] :trace []}`

	report, err := ParseException(doc)
	require.NoError(t, err)

	assert.Equal(t, "Divide by zero\n", report.Message())
	assert.Empty(t, report.Trace())
	assert.Equal(t, "Divide by zero\n", report.String())
}

func TestParseExceptionInvalid(t *testing.T) {
	_, err := ParseException(`{:via [`)
	assert.True(t, IsKind(err, KindDecode))

	_, err = ParseException(`[1 2 3]`)
	assert.True(t, IsKind(err, KindProtocol))
}

func TestExceptionFromDecodedValue(t *testing.T) {
	report, err := ExceptionFromEDN(map[any]any{
		edn.Keyword("via"):   []any{map[any]any{edn.Keyword("message"): "decoded"}},
		edn.Keyword("trace"): []any{[]any{edn.Symbol("f"), "x.clj", int64(3)}},
	})
	require.NoError(t, err)
	assert.Equal(t, "decoded\n-- Trace --\nf x.clj 3\n", report.String())
}

func indexOf(lines []string, want string) int {
	for i, l := range lines {
		if l == want {
			return i
		}
	}
	return -1
}
