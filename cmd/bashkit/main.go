// Command bashkit is the CLI surface specified in spec §6.4: it either
// evaluates a single command (-c), runs a script file, or starts an MCP
// JSON-RPC server exposing BashKit as a single "bash" tool.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bashkit/bashkit/interp"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if code, ok := interp.IsExitStatus(err); ok {
			os.Exit(int(code))
		}
		logrus.WithError(err).Error("bashkit: fatal")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "bashkit",
		Short:         "Sandboxed bash-like interpreter for LLM tool use",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			logrus.SetFormatter(&logrus.JSONFormatter{})
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")

	root.AddCommand(newRunCmd(), newMCPCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var cmdStr string
	var timeoutMS int
	var maxCommands int
	var maxLoopIterations int

	cmd := &cobra.Command{
		Use:   "run [-c CMD | SCRIPT [ARGS...]]",
		Short: "Run a BashKit script or inline command",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd.Context(), runOptions{
				inline:            cmdStr,
				args:              args,
				timeoutMS:         timeoutMS,
				maxCommands:       maxCommands,
				maxLoopIterations: maxLoopIterations,
			})
		},
	}
	cmd.Flags().StringVarP(&cmdStr, "command", "c", "", "command string to execute")
	cmd.Flags().IntVar(&timeoutMS, "timeout-ms", 0, "wall-clock timeout in milliseconds (0 = unlimited)")
	cmd.Flags().IntVar(&maxCommands, "max-commands", 0, "maximum commands executed (0 = unlimited)")
	cmd.Flags().IntVar(&maxLoopIterations, "max-loop-iterations", 0, "maximum loop iterations (0 = unlimited)")
	return cmd
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run a JSON-RPC 2.0 MCP server exposing BashKit as a \"bash\" tool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveMCP(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}
