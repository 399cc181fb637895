package sink

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/zylisp/bridge/protocol"
)

var (
	markerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	kindStyles = map[Kind]lipgloss.Style{
		KindError:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		KindException: lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true),
		KindOutput:    lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		KindStatus:    lipgloss.NewStyle().Foreground(lipgloss.Color("81")),
		KindValue:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	}
)

// Terminal streams rendered lines to a writer, colored by kind.
type Terminal struct {
	w   io.Writer
	now func() time.Time
}

// NewTerminal returns a sink writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w, now: time.Now}
}

// Start writes the styled start marker.
func (t *Terminal) Start() error {
	return t.marker(";; Start " + t.now().Format(TimeFormat))
}

// Show writes each line of resp in the style of its kind. Responses with
// no display kind are skipped.
func (t *Terminal) Show(resp protocol.Response) error {
	kind, ok := KindOf(resp)
	if !ok {
		return nil
	}
	style := kindStyles[kind]
	for _, line := range Lines(resp) {
		if _, err := fmt.Fprintln(t.w, style.Render(line)); err != nil {
			return fmt.Errorf("failed to write to terminal: %w", err)
		}
	}
	return nil
}

// Stop writes reason, if any, as a status line followed by the end marker.
func (t *Terminal) Stop(reason string) error {
	if reason != "" {
		if err := t.marker(Prefix(KindStatus) + reason); err != nil {
			return err
		}
	}
	return t.marker(";; End   " + t.now().Format(TimeFormat))
}

func (t *Terminal) marker(text string) error {
	if _, err := fmt.Fprintln(t.w, markerStyle.Render(text)); err != nil {
		return fmt.Errorf("failed to write to terminal: %w", err)
	}
	return nil
}
