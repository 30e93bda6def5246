package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"noeta/internal/events"
	"noeta/internal/term"
)

var (
	queryType  string
	queryKBID  string
)

var queryCmd = &cobra.Command{
	Use:   "query <pattern>",
	Short: "Query the persisted belief base by backward chaining",
	Long: `Parses pattern as a KIF form and backward-chains from it, printing a
"status:" line followed by one "var = value" line per bound variable of
each solution ("(no free variables)" for a solution without any).

Example:
  noeta query --type ASK_BINDINGS "(likes tom ?who)"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryType, "type", "ASK_BINDINGS", "ASK_BINDINGS | ASK_TRUE_FALSE | ACHIEVE_GOAL")
	queryCmd.Flags().StringVar(&queryKBID, "kb", "", "target knowledge-base context (default: global)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	b, err := bootCognition()
	if err != nil {
		return err
	}
	defer b.close()

	pattern, err := term.Parse(args[0])
	if err != nil {
		return fmt.Errorf("parse pattern: %w", err)
	}

	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithTimeout(baseCtx, timeout)
	defer cancel()

	result := b.Cog.QuerySync(ctx, events.QueryType(queryType), pattern, queryKBID)
	fmt.Printf("status: %s\n", result.Status)
	for _, bindings := range result.Bindings {
		for v, val := range bindings {
			fmt.Printf("  %s = %s\n", v, term.KIF(val))
		}
		if len(bindings) == 0 {
			fmt.Println("  (no free variables)")
		}
	}
	return nil
}
