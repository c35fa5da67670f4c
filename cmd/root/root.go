// Package root wires the rentagent command line.
package root

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	debugMode   bool
	logFilePath string
)

func NewRootCmd() *cobra.Command {
	var logFile *os.File

	cmd := &cobra.Command{
		Use:          "rentagent",
		Short:        "UK rental market assistant service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelInfo
			if debugMode {
				level = slog.LevelDebug
			}

			var out io.Writer = cmd.ErrOrStderr()
			if logFilePath != "" {
				f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return fmt.Errorf("opening log file: %w", err)
				}
				logFile = f
				out = f
			}

			slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
				Level: level,
			})))
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logFile != nil {
				if err := logFile.Close(); err != nil {
					fmt.Fprintln(os.Stderr, "failed to close log file:", err)
				}
			}
		},
	}

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&logFilePath, "log-file", "", "write logs to a file instead of stderr")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
