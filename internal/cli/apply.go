package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackr-io/stackr/internal/state"
)

var applyAutoApprove bool

var applyCmd = &cobra.Command{
	Use:   "apply [template]",
	Short: "Reconcile resources to match the template",
	Long: `Plans and executes the changes needed to make real resources match
the template. Independent resources are applied concurrently; a failure
skips only the resources that depend on it.

Exit codes: 0 on success, 1 when some resources failed or were skipped,
2 when no changes could be attempted at all.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of the plan")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadTemplate(args)
	if err != nil {
		return exitWith(2, err)
	}

	store, err := openStore(ctx, cfg.Stack)
	if err != nil {
		return exitWith(2, err)
	}
	defer store.Unlock()

	eng := newEngine()
	cs, err := eng.Plan(ctx, cfg, store.Snapshot())
	if err != nil {
		return exitWith(2, err)
	}

	if cs.Empty() {
		fmt.Println("No changes. Infrastructure matches the template.")
		return nil
	}

	fmt.Printf("Stack %s requires the following actions:\n", cfg.Stack)
	renderChangeSet(cs)

	if !applyAutoApprove {
		fmt.Print("\nDo you want to perform these actions? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	fmt.Println()
	result := eng.Apply(ctx, cs, store, reportApply)

	// Persist whatever succeeded even when other entries failed, so a rerun
	// resumes instead of re-creating.
	if err := saveState(ctx, store); err != nil {
		return exitWith(2, err)
	}

	fmt.Printf("\nApply complete. Applied: %d, failed: %d, skipped: %d.\n",
		result.Applied, result.Failed, result.Skipped)

	if result.Failed > 0 || result.Skipped > 0 {
		return exitWith(1, result.Err())
	}
	return nil
}

func saveState(ctx context.Context, store *state.Store) error {
	if err := store.Save(ctx); err != nil {
		return fmt.Errorf("failed to persist state: %w", err)
	}
	return nil
}
