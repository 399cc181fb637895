package tcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackpal/bencode-go"

	"github.com/zylisp/bridge/protocol"
)

// probeCode is harmless to evaluate in both dialects.
const probeCode = "(+ 1 1)"

// probeFrame returns a bencoded eval request. A pREPL server reads it as
// source text and answers with an EDN map, an nREPL server answers with a
// bencode dictionary.
func probeFrame() ([]byte, error) {
	var buf bytes.Buffer
	req := map[string]any{
		"op":   "eval",
		"code": probeCode,
	}
	if err := bencode.Marshal(&buf, req); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Probe sends an eval request in the nREPL framing and classifies the server
// by the first byte of its reply.
func Probe(rw io.ReadWriter) (protocol.Dialect, error) {
	frame, err := probeFrame()
	if err != nil {
		return "", fmt.Errorf("failed to encode probe: %w", err)
	}

	if _, err := rw.Write(frame); err != nil {
		return "", fmt.Errorf("%w: probe write failed: %v", protocol.ErrNoREPL, err)
	}

	var first [1]byte
	if _, err := io.ReadFull(rw, first[:]); err != nil {
		return "", fmt.Errorf("%w: probe read failed: %v", protocol.ErrNoREPL, err)
	}

	switch first[0] {
	case '{':
		return protocol.DialectPREPL, nil
	case 'd':
		return protocol.DialectNREPL, nil
	default:
		return "", fmt.Errorf("%w: unexpected first byte 0x%02x", protocol.ErrNoREPL, first[0])
	}
}

// Detect opens a dedicated probe connection to addr, detects the dialect and
// closes the probe connection again. The context deadline bounds the probe.
func Detect(ctx context.Context, addr string) (protocol.Dialect, error) {
	conn, err := Dial(ctx, addr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", protocol.ErrNoREPL, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.conn.SetDeadline(deadline)
	}

	// Unblock the probe read when the context is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.conn.SetDeadline(time.Now())
	})
	defer stop()

	dialect, err := Probe(conn.conn)
	if err != nil {
		slog.Debug("Dialect probe failed", "addr", addr, "error", err)
		return "", err
	}

	slog.Debug("Detected REPL dialect", "addr", addr, "dialect", dialect)
	return dialect, nil
}
