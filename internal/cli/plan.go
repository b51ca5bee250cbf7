package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan [template]",
	Short: "Show the changes required to reach the declared state",
	Long: `Diffs the template against recorded state and prints the ordered
change set without touching any resource. Exits 0 whether or not changes
are pending; exits 2 if the plan cannot be computed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
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

	cs, err := newEngine().Plan(ctx, cfg, store.Snapshot())
	if err != nil {
		return exitWith(2, err)
	}

	if cs.Empty() {
		fmt.Println("No changes. Infrastructure matches the template.")
		return nil
	}

	fmt.Printf("Stack %s requires the following actions:\n", cfg.Stack)
	renderChangeSet(cs)
	return nil
}
