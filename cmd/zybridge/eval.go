package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/zylisp/bridge"
	"github.com/zylisp/bridge/client"
	"github.com/zylisp/bridge/sink"
)

var (
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

var evalCmd = &cobra.Command{
	Use:   "eval [code]",
	Short: "Evaluate code once and print the result",
	Long: `Connect to a REPL server, evaluate the given code (or stdin when no code
is given) and print what it produced. Exits non-zero when the evaluation
threw.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closeLog, err := loadConfig()
		if err != nil {
			return err
		}
		defer closeLog()

		if err := applyConnFlags(cmd, cfg); err != nil {
			return err
		}

		code, err := readCode(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}

		addr, err := bridge.ResolveAddr(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		c, err := client.Connect(ctx, addr, cfg.DialectValue())
		if err != nil {
			return err
		}
		defer c.Close()

		result, err := c.Eval(ctx, code)
		if err != nil {
			return err
		}

		printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), result)
		if result.Exception != "" {
			return fmt.Errorf("evaluation threw an exception")
		}
		return nil
	},
}

func readCode(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read code from stdin: %w", err)
	}
	code := strings.TrimSpace(string(data))
	if code == "" {
		return "", fmt.Errorf("no code given")
	}
	return code, nil
}

func printResult(stdout, stderr io.Writer, result *client.Result) {
	if result.Output != "" {
		fmt.Fprint(stdout, result.Output)
	}
	if result.Error != "" {
		fmt.Fprint(stderr, errorStyle.Render(result.Error))
	}
	if result.Exception != "" {
		for _, line := range strings.Split(strings.TrimRight(result.Exception, "\n"), "\n") {
			fmt.Fprintln(stderr, errorStyle.Render(sink.Prefix(sink.KindException)+line))
		}
		return
	}
	fmt.Fprintln(stdout, valueStyle.Render(result.Value))
}

func init() {
	addConnFlags(evalCmd)
	rootCmd.AddCommand(evalCmd)
}
