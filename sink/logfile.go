package sink

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/zylisp/bridge/protocol"
)

// DefaultMaxLines bounds an eval log when no size is configured.
const DefaultMaxLines = 100

// TimeFormat is the timestamp layout of the start and end markers.
const TimeFormat = "15:04:05 Jan 02 2006"

// LogFile keeps a bounded eval log and rewrites it to disk after every
// change, so an editor can keep the file open as a live buffer. When an
// append would exceed the bound, the oldest half of the bound is trimmed
// first.
type LogFile struct {
	path     string
	maxLines int
	now      func() time.Time

	mu    sync.Mutex
	lines []string
}

// NewLogFile returns a sink writing to path. A maxLines of zero or less
// selects DefaultMaxLines.
func NewLogFile(path string, maxLines int) *LogFile {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &LogFile{path: path, maxLines: maxLines, now: time.Now}
}

// Start replaces the file contents with a start marker.
func (l *LogFile) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	slog.Debug("Opening eval log", "path", l.path, "max_lines", l.maxLines)
	l.lines = []string{fmt.Sprintf(";; Start %s ", l.now().Format(TimeFormat))}
	return l.flush()
}

// Show appends the rendered lines of resp.
func (l *LogFile) Show(resp protocol.Response) error {
	lines := Lines(resp)
	if len(lines) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.append(lines)
	return l.flush()
}

// Stop appends the reason, if any, and an end marker.
func (l *LogFile) Stop(reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var lines []string
	if reason != "" {
		lines = append(lines, Prefix(KindStatus)+reason)
	}
	lines = append(lines, fmt.Sprintf(";; End   %s ", l.now().Format(TimeFormat)))
	l.append(lines)
	return l.flush()
}

// Lines returns a copy of the current log.
func (l *LogFile) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

func (l *LogFile) append(lines []string) {
	if len(l.lines)+len(lines) > l.maxLines {
		trim := min(l.maxLines/2, len(l.lines))
		l.lines = append(l.lines[:0:0], l.lines[trim:]...)
		slog.Debug("Trimmed eval log", "lines", trim)
	}
	l.lines = append(l.lines, lines...)
}

func (l *LogFile) flush() error {
	data := strings.Join(l.lines, "\n") + "\n"
	if err := os.WriteFile(l.path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("failed to write eval log: %w", err)
	}
	return nil
}
