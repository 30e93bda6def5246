// Package main implements the noeta CLI and server entry point.
//
// # File Index
//
//	main.go        - entry point, rootCmd, global flags, init()
//	cmd_serve.go   - serveCmd: boots Cognition, transport, and tools, runs until signaled
//	cmd_assert.go  - assertCmd: one-shot KIF assertion against the persisted snapshot
//	cmd_query.go   - queryCmd: one-shot query against the persisted snapshot
//	cmd_retract.go - retractCmd: one-shot retraction against the persisted snapshot
//	cmd_status.go  - statusCmd: prints a StatusSnapshot
//	boot.go        - shared snapshot-backed Cognition bring-up/tear-down helpers
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"noeta/internal/logging"
)

var (
	verbose   bool
	apiKey    string
	workspace string
	timeout   time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "noeta",
	Short: "noeta - a symbolic cognition engine (KIF assertions, rules, backward chaining, a belief revision TMS)",
	Long: `noeta holds a network of active assertions and rules in knowledge-base
contexts, keeps them consistent under a truth maintenance system, and answers
queries by backward chaining, all reachable over a WebSocket transport or this
CLI.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(filepath.Join(ws, ".noeta"), verbose); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "LLM API key (or set NOETA_LLM_API_KEY)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "operation timeout")

	rootCmd.AddCommand(serveCmd, assertCmd, queryCmd, retractCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
