package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	destroyAutoApprove bool
	destroyStack       string
)

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Delete every resource recorded in state",
	Long: `Deletes all resources the stack's state knows about, dependents
before their dependencies. The template is not consulted.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval")
	destroyCmd.Flags().StringVar(&destroyStack, "stack", "", "Stack name (required)")
	destroyCmd.MarkFlagRequired("stack")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openStore(ctx, destroyStack)
	if err != nil {
		return exitWith(2, err)
	}
	defer store.Unlock()

	eng := newEngine()
	cs, err := eng.PlanDestroy(ctx, store.Snapshot())
	if err != nil {
		return exitWith(2, err)
	}

	if cs.Empty() {
		fmt.Println("Nothing to destroy.")
		return nil
	}

	fmt.Printf("Stack %s: %d resource(s) will be destroyed.\n", destroyStack, cs.Summary.Delete)
	renderChangeSet(cs)

	if !destroyAutoApprove {
		fmt.Print("\nDo you really want to destroy all resources? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	fmt.Println()
	result := eng.Apply(ctx, cs, store, reportApply)

	if err := saveState(ctx, store); err != nil {
		return exitWith(2, err)
	}

	fmt.Printf("\nDestroy complete. Deleted: %d, failed: %d, skipped: %d.\n",
		result.Applied, result.Failed, result.Skipped)

	if result.Failed > 0 || result.Skipped > 0 {
		return exitWith(1, result.Err())
	}
	return nil
}
