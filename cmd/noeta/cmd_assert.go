package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"noeta/internal/term"
)

var assertCmd = &cobra.Command{
	Use:   "assert <kif> [kif...]",
	Short: "Assert one or more KIF forms against the persisted belief base",
	Long: `Parses each argument as a KIF form and commits it: a rule-shaped
form ((=> ...), (<=> ...), (= ...)) goes to the rule store, anything else
becomes an assertion in the global knowledge base. Writes the resulting
belief base back to the workspace's snapshot.

Example:
  noeta assert "(likes tom jerry)" "(=> (likes ?x ?y) (friend ?x ?y))"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAssert,
}

func runAssert(cmd *cobra.Command, args []string) error {
	b, err := bootCognition()
	if err != nil {
		return err
	}
	defer b.close()

	for _, kif := range args {
		t, err := term.Parse(kif)
		if err != nil {
			return fmt.Errorf("parse %q: %w", kif, err)
		}
		if err := b.Cog.AddKIF(t, "cli", ""); err != nil {
			return fmt.Errorf("assert %q: %w", kif, err)
		}
		logger.Info("asserted", zap.String("kif", kif))
		fmt.Println(kif)
	}

	return b.save()
}
