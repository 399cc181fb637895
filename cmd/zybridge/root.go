package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zylisp/bridge/config"
	"github.com/zylisp/bridge/internal/version"
)

var (
	configPath string
	debug      bool

	host    string
	port    string
	dialect string
)

var rootCmd = &cobra.Command{
	Use:   "zybridge",
	Short: "Bridge an editor to a Clojure nREPL or socket pREPL server",
	Long: `zybridge connects to a running Clojure REPL server, detects whether it
speaks nREPL or socket pREPL, and relays newline-delimited JSON commands from
stdin to it. Results are written to an eval log file or the terminal, and
session events go to stdout as JSON lines.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(fmt.Sprintf("zybridge %s\n", version.String()))

	defaultConfig, err := config.DefaultPath()
	if err != nil {
		defaultConfig = ""
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// loadConfig reads the config file and installs the default logger. The
// returned function closes the log file.
func loadConfig() (*config.Config, func() error, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if debug {
		cfg.Log.Level = "debug"
	}

	logger, closeLog, err := cfg.Log.CreateLogger(os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	slog.SetDefault(logger)

	return cfg, closeLog, nil
}

// addConnFlags registers the server address flags on cmd.
func addConnFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "REPL server host")
	cmd.Flags().StringVarP(&port, "port", "p", "", "REPL server port (default: read from .nrepl-port)")
	cmd.Flags().StringVar(&dialect, "dialect", "auto", "REPL dialect (auto, nrepl, prepl)")
}

// applyConnFlags overrides cfg with the address flags given on the command
// line.
func applyConnFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = host
	}
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("dialect") {
		cfg.Dialect = dialect
	}
	return cfg.Validate()
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
