// Package host connects the bridge to the editor process: commands arrive as
// newline-delimited JSON on one stream and events leave as newline-delimited
// JSON on another.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/zylisp/bridge/protocol"
)

// ErrUnknownCommand is returned by ToRequest for command names it does not
// recognize.
var ErrUnknownCommand = errors.New("unknown host command")

// Command is one host command, for example
//
//	{"command": "eval", "params": {"code": "(+ 1 1)"}}
type Command struct {
	Name   string         `json:"command"`
	Params map[string]any `json:"params,omitempty"`
}

// Reader decodes commands from a stream.
type Reader struct {
	decoder *json.Decoder
}

// NewReader returns a reader decoding from r.
func NewReader(r io.Reader) *Reader {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	return &Reader{decoder: decoder}
}

// Next decodes the next command. It returns io.EOF at the end of the stream.
func (r *Reader) Next() (Command, error) {
	var cmd Command
	if err := r.decoder.Decode(&cmd); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// ToRequest translates a host command. "eval" and "interrupt" carry their
// params; "exit" and "stop" ask the server to close the session. Any other
// name yields ErrUnknownCommand. Param values must be strings or integers in
// the 32-bit range.
func ToRequest(cmd Command) (protocol.Request, error) {
	switch cmd.Name {
	case "eval":
		params, err := toParams(cmd.Params)
		if err != nil {
			return nil, err
		}
		return protocol.Eval{Params: params}, nil
	case "interrupt":
		params, err := toParams(cmd.Params)
		if err != nil {
			return nil, err
		}
		return protocol.Interrupt{Params: params}, nil
	case "exit", "stop":
		return protocol.Exit{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}
}

func toParams(in map[string]any) (protocol.Params, error) {
	params := make(protocol.Params, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			params[protocol.Str(k)] = protocol.Str(val)
		case json.Number:
			n, err := val.Int64()
			if err != nil {
				return nil, fmt.Errorf("param %q: %s is not an integer", k, val)
			}
			if n < math.MinInt32 || n > math.MaxInt32 {
				return nil, fmt.Errorf("param %q: %d is out of range", k, n)
			}
			params[protocol.Str(k)] = protocol.Int(int32(n))
		default:
			return nil, fmt.Errorf("param %q: unsupported value type %T", k, v)
		}
	}
	return params, nil
}

// Pump reads commands from r and delivers their requests in order. Unknown
// commands and commands with invalid params are logged and skipped. The
// channel is closed at the end of the stream, on a read error or when ctx is
// done.
func Pump(ctx context.Context, r *Reader) <-chan protocol.Request {
	out := make(chan protocol.Request)

	go func() {
		defer close(out)

		for {
			cmd, err := r.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					slog.Debug("Host command stream closed")
				} else {
					slog.Error("Failed to read host command", "error", err)
				}
				return
			}

			req, err := ToRequest(cmd)
			if err != nil {
				slog.Warn("Ignoring host command", "command", cmd.Name, "error", err)
				continue
			}
			slog.Debug("Host command", "command", cmd.Name)

			select {
			case out <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
