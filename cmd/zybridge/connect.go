package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zylisp/bridge"
)

var (
	evalLog string
	logSize int
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a REPL server and relay host commands",
	Long: `Connect to a REPL server and relay newline-delimited JSON commands from
stdin. The port defaults to the contents of .nrepl-port in the working
directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closeLog, err := loadConfig()
		if err != nil {
			return err
		}
		defer closeLog()

		flags := cmd.Flags()
		if flags.Changed("log") {
			cfg.EvalLog.Path = evalLog
		}
		if flags.Changed("logsize") {
			cfg.EvalLog.MaxLines = logSize
		}
		if err := applyConnFlags(cmd, cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		slog.Debug("Starting zybridge", "host", cfg.Host, "port", cfg.Port, "dialect", cfg.Dialect)

		return bridge.Run(ctx, bridge.Options{
			Config:  cfg,
			Input:   cmd.InOrStdin(),
			Output:  cmd.OutOrStdout(),
			Display: cmd.ErrOrStderr(),
		})
	},
}

func init() {
	addConnFlags(connectCmd)
	connectCmd.Flags().StringVarP(&evalLog, "log", "l", "", "Eval log file path, e.g. /tmp/zybridge-log.clj")
	connectCmd.Flags().IntVarP(&logSize, "logsize", "s", 100, "Eval log size in lines")

	rootCmd.AddCommand(connectCmd)
}
