package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zylisp/bridge/config"
	"github.com/zylisp/bridge/host"
	"github.com/zylisp/bridge/internal/fakerepl"
	"github.com/zylisp/bridge/protocol"
	"github.com/zylisp/bridge/sink"
)

func startServer(t *testing.T, h fakerepl.Handler) *fakerepl.Server {
	t.Helper()
	server := fakerepl.NewServer(h)
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Stop(ctx)
	})
	return server
}

func configFor(t *testing.T, addr string) *config.Config {
	t.Helper()
	h, p, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	cfg := config.Default()
	cfg.Host, cfg.Port = h, p
	return cfg
}

func readEvents(t *testing.T, out *bytes.Buffer) []host.Event {
	t.Helper()
	var events []host.Event
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var ev host.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	return events
}

func TestRunNREPL(t *testing.T) {
	fake := &fakerepl.NREPL{Eval: func(code string) []fakerepl.Message {
		if code == "(+ 1 1)" {
			return []fakerepl.Message{fakerepl.ValueReply("2", "user"), fakerepl.StatusReply("done")}
		}
		return []fakerepl.Message{fakerepl.ValueReply("nil", "user"), fakerepl.StatusReply("done")}
	}}
	server := startServer(t, fake)

	cfg := configFor(t, server.Addr())
	cfg.EvalLog.Path = filepath.Join(t.TempDir(), "eval.clj")

	input := strings.NewReader(
		`{"command":"eval","params":{"code":"(+ 1 1)"}}` + "\n" +
			`{"command":"exit"}` + "\n",
	)
	var output bytes.Buffer

	err := Run(context.Background(), Options{Config: cfg, Input: input, Output: &output})
	require.NoError(t, err)

	events := readEvents(t, &output)
	require.Len(t, events, 2)
	assert.Equal(t, host.Event{Event: host.EventSession, Dialect: "nrepl", Session: fake.SessionID()}, events[0])
	assert.Equal(t, host.Event{Event: host.EventEcho, Text: "2"}, events[1])
}

func TestRunPREPLToTerminal(t *testing.T) {
	fake := &fakerepl.PREPL{Eval: func(code string) []string {
		return []string{`{:tag :err :val "careful\n"}`, fakerepl.RetLine("42")}
	}}
	server := startServer(t, fake)

	input := strings.NewReader(`{"command":"eval","params":{"code":"(f)"}}` + "\n" + `{"command":"stop"}` + "\n")
	var output, display bytes.Buffer

	err := Run(context.Background(), Options{
		Config:  configFor(t, server.Addr()),
		Input:   input,
		Output:  &output,
		Display: &display,
	})
	require.NoError(t, err)

	events := readEvents(t, &output)
	require.NotEmpty(t, events)
	assert.Equal(t, "prepl", events[0].Dialect)
	assert.Contains(t, events, host.Event{Event: host.EventEcho, Text: "ERROR: careful"})

	shown := display.String()
	assert.Contains(t, shown, ";✖ careful")
	assert.Contains(t, shown, "42")
	assert.Contains(t, shown, ";; End")
}

func TestRunReportsConnectionFailure(t *testing.T) {
	server := startServer(t, fakerepl.Raw([]byte("garbage")))

	var output bytes.Buffer
	err := Run(context.Background(), Options{
		Config: configFor(t, server.Addr()),
		Input:  strings.NewReader(""),
		Output: &output,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrNoREPL)

	events := readEvents(t, &output)
	require.Len(t, events, 1)
	assert.Equal(t, host.EventFatal, events[0].Event)
	assert.Contains(t, events[0].Error, "failed to open REPL session")
}

func TestRunReportsMissingPort(t *testing.T) {
	cfg := config.Default()
	cfg.PortFile = filepath.Join(t.TempDir(), ".nrepl-port")

	var output bytes.Buffer
	err := Run(context.Background(), Options{Config: cfg, Input: strings.NewReader(""), Output: &output})
	require.Error(t, err)
	assert.Contains(t, output.String(), `"event":"fatal"`)
}

func TestNewSink(t *testing.T) {
	_, ok := NewSink(config.EvalLogConfig{Path: "/tmp/x.clj", MaxLines: 5}, nil).(*sink.LogFile)
	assert.True(t, ok)
	_, ok = NewSink(config.EvalLogConfig{}, nil).(*sink.Terminal)
	assert.True(t, ok)
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("nREPL")
	require.NoError(t, err)
	assert.Equal(t, protocol.DialectNREPL, d)

	d, err = ParseDialect("auto")
	require.NoError(t, err)
	assert.Equal(t, protocol.Dialect(""), d)

	_, err = ParseDialect("swank")
	assert.Error(t, err)
}

func TestDetect(t *testing.T) {
	server := startServer(t, &fakerepl.PREPL{})
	d, err := Detect(context.Background(), server.Addr())
	require.NoError(t, err)
	assert.Equal(t, protocol.DialectPREPL, d)
}
