package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackr-io/stackr/internal/engine"
)

var (
	driftStack    string
	driftInterval time.Duration
	driftWatch    bool
)

var driftCmd = &cobra.Command{
	Use:   "drift [template]",
	Short: "Detect divergence between recorded state and live resources",
	Long: `Compares every recorded resource against what the provider actually
reports and prints the differences. Nothing is modified; run apply to
reconcile.

The stack is taken from the template argument, or from --stack when no
template is given. Exits 1 when drift is found, 0 when state matches
reality.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDrift,
}

func init() {
	driftCmd.Flags().StringVar(&driftStack, "stack", "", "Stack name (defaults to the template's)")
	driftCmd.Flags().DurationVar(&driftInterval, "interval", engine.DefaultDriftInterval, "Sweep interval in watch mode")
	driftCmd.Flags().BoolVar(&driftWatch, "watch", false, "Keep sweeping on the interval instead of exiting")
}

func runDrift(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	stack := driftStack
	if stack == "" {
		cfg, err := loadTemplate(args)
		if err != nil {
			return exitWith(2, err)
		}
		stack = cfg.Stack
	}

	store, err := openStore(ctx, stack)
	if err != nil {
		return exitWith(2, err)
	}
	defer store.Unlock()

	detector := engine.NewDetector(newEngine(), store)
	detector.Interval = driftInterval

	if driftWatch {
		fmt.Printf("Watching stack %s for drift every %s.\n", stack, driftInterval)
		return detector.Run(ctx, printDrift)
	}

	events, err := detector.DetectOnce(ctx)
	if err != nil {
		return exitWith(2, err)
	}
	if len(events) == 0 {
		fmt.Println("No drift detected.")
		return nil
	}

	printDrift(events)
	return exitWith(1, fmt.Errorf("%d resource(s) drifted", len(events)))
}

func printDrift(events []*engine.DriftEvent) {
	for _, ev := range events {
		if ev.Missing {
			fmt.Printf("%s%s (%s): resource no longer exists%s\n", colorRed, ev.Address, ev.Kind, colorReset)
			continue
		}
		fmt.Printf("%s%s (%s) drifted:%s\n", colorYellow, ev.Address, ev.Kind, colorReset)
		for _, f := range ev.Fields {
			fmt.Printf("  ~ %s: %s -> %s\n", f.Path, formatValue(f.Stored), formatValue(f.Live))
		}
	}
}
