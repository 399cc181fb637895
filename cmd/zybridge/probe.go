package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/zylisp/bridge"
)

var (
	dialectStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

var probeCmd = &cobra.Command{
	Use:   "probe [addr]",
	Short: "Report which REPL dialect a server speaks",
	Long: `Probe a REPL server and print its dialect. Without an address the
configured host and port are used, falling back to .nrepl-port.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closeLog, err := loadConfig()
		if err != nil {
			return err
		}
		defer closeLog()

		var addr string
		if len(args) == 1 {
			addr = args[0]
		} else if addr, err = bridge.ResolveAddr(cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if cfg.ProbeTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.ProbeTimeout)
			defer cancel()
		}

		dialect, err := bridge.Detect(ctx, addr)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", dimStyle.Render(addr), dialectStyle.Render(string(dialect)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
