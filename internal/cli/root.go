// Package cli wires the engine, state store and providers into the stackr
// command tree.
package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/stackr-io/stackr/internal/logging"
)

var (
	flagLogLevel      string
	flagStatePath     string
	flagBackend       string
	flagBackendConfig map[string]string
	flagParallelism   int
	flagTimeout       time.Duration
	flagImports       map[string]string
)

var rootCmd = &cobra.Command{
	Use:   "stackr",
	Short: "Declarative infrastructure reconciliation",
	Long: `Stackr reconciles declared infrastructure against recorded state.

It reads a YAML template describing resources and their dependencies,
plans the minimal set of changes against the last-applied state, and
executes them concurrently in dependency order.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(flagLogLevel)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagStatePath, "state-path", "", "Path to the local state file (default .stackr/<stack>.state.json)")
	pf.StringVar(&flagBackend, "backend", "local", "State backend (local or s3)")
	pf.StringToStringVar(&flagBackendConfig, "backend-config", nil, "Backend settings (format: key=value)")
	pf.IntVar(&flagParallelism, "parallelism", 0, "Maximum concurrent resource operations (0 uses the default)")
	pf.DurationVar(&flagTimeout, "timeout", 0, "Per-resource operation timeout (0 uses the default)")
	pf.StringToStringVar(&flagImports, "import", nil, "Values for !ImportValue references (format: export=value)")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(versionCmd)
}
