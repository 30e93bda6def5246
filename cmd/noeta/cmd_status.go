package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show belief-base context and rule counts",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	b, err := bootCognition()
	if err != nil {
		return err
	}
	defer b.close()

	snap := b.Cog.Status()
	fmt.Printf("rules: %d\n", snap.RuleCount)
	fmt.Printf("contexts: %d\n", len(snap.Contexts))

	contexts := append([]string(nil), snap.Contexts...)
	sort.Strings(contexts)
	for _, ctx := range contexts {
		fmt.Printf("  %s: %d active assertions\n", ctx, snap.AssertionCounts[ctx])
	}
	return nil
}
