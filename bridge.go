// Package bridge connects an editor to a running Clojure REPL server.
//
// The editor drives the bridge with newline-delimited JSON commands and
// receives newline-delimited JSON events back:
//
//	{"command": "eval", "params": {"code": "(+ 1 1)"}}
//	{"command": "interrupt", "params": {}}
//	{"command": "exit"}
//
//	{"event": "session", "dialect": "nrepl", "session": "..."}
//	{"event": "echo", "text": "2"}
//	{"event": "fatal", "error": "..."}
//
// Two server dialects are supported and detected automatically: nREPL, which
// frames bencode dictionaries, and socket pREPL, which reads source text and
// answers with one EDN map per line. Everything the server sends is rendered
// to a display sink, either a bounded eval log file or a terminal.
//
// Example usage:
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = bridge.Run(ctx, bridge.Options{
//	    Config: cfg,
//	    Input:  os.Stdin,
//	    Output: os.Stdout,
//	})
package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/zylisp/bridge/config"
	"github.com/zylisp/bridge/host"
	"github.com/zylisp/bridge/protocol"
	"github.com/zylisp/bridge/session"
	"github.com/zylisp/bridge/sink"
	"github.com/zylisp/bridge/transport/tcp"
)

// Options configure Run.
type Options struct {
	// Config holds the connection and eval log settings.
	Config *config.Config

	// Input carries host commands.
	Input io.Reader

	// Output receives host events.
	Output io.Writer

	// Display receives rendered responses when no eval log path is
	// configured. Nil means os.Stderr.
	Display io.Writer
}

// Run connects to the configured server and bridges host commands to it
// until the host exits, the input ends, ctx is cancelled or the session
// fails. Connection failures are reported to the host as fatal events too.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	events := host.NewEvents(opts.Output)

	fail := func(err error) error {
		if notifyErr := events.Fatal(err); notifyErr != nil {
			slog.Warn("Failed to report fatal error", "error", notifyErr)
		}
		return err
	}

	addr, err := ResolveAddr(cfg)
	if err != nil {
		return fail(err)
	}

	s, err := session.Open(ctx, session.Options{
		Addr:         addr,
		Dialect:      cfg.DialectValue(),
		Sink:         NewSink(cfg.EvalLog, opts.Display),
		Notifier:     events,
		ProbeTimeout: cfg.ProbeTimeout,
		CloseTimeout: cfg.CloseTimeout,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to open REPL session at %s: %w", addr, err))
	}

	requests := host.Pump(ctx, host.NewReader(opts.Input))
	return s.Run(ctx, requests)
}

// NewSink returns the eval log sink when a path is configured and a terminal
// sink on display otherwise.
func NewSink(cfg config.EvalLogConfig, display io.Writer) sink.Sink {
	if cfg.Path != "" {
		return sink.NewLogFile(cfg.Path, cfg.MaxLines)
	}
	if display == nil {
		display = os.Stderr
	}
	return sink.NewTerminal(display)
}

// Detect reports the dialect spoken by the server at addr.
func Detect(ctx context.Context, addr string) (protocol.Dialect, error) {
	return tcp.Detect(ctx, addr)
}

// ParseDialect parses "nrepl", "prepl" or "auto".
func ParseDialect(name string) (protocol.Dialect, error) {
	return protocol.ParseDialect(name)
}

// ResolveAddr returns the server address, reading the port file when no
// port is configured.
func ResolveAddr(cfg *config.Config) (string, error) {
	return cfg.Addr()
}
