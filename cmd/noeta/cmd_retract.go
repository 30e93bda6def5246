package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"noeta/internal/events"
)

var (
	retractKind    string
	retractReason  string
	retractContext string
)

var retractCmd = &cobra.Command{
	Use:   "retract <target>",
	Short: "Retract an assertion, KIF form, or note from the persisted belief base",
	Long: `target's meaning depends on --kind:
  BY_ID   - an assertion ID
  BY_KIF  - a KIF form to match and retract
  BY_NOTE - a note ID, retracting everything sourced from it

Example:
  noeta retract --kind BY_KIF "(likes tom jerry)"`,
	Args: cobra.ExactArgs(1),
	RunE: runRetract,
}

func init() {
	retractCmd.Flags().StringVar(&retractKind, "kind", "BY_ID", "BY_ID | BY_KIF | BY_NOTE")
	retractCmd.Flags().StringVar(&retractReason, "reason", "cli retract", "reason recorded against the retraction")
	retractCmd.Flags().StringVar(&retractContext, "kb", "", "knowledge-base context to retract within (default: global)")
}

func runRetract(cmd *cobra.Command, args []string) error {
	b, err := bootCognition()
	if err != nil {
		return err
	}
	defer b.close()

	if err := b.Cog.Retract(events.RetractKind(retractKind), args[0], retractReason, retractContext); err != nil {
		return fmt.Errorf("retract: %w", err)
	}
	return b.save()
}
