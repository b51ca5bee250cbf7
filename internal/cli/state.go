package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var stateStack string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect recorded state",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the resources recorded in state",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <resource>",
	Short: "Show the recorded state of one resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateOutputsCmd = &cobra.Command{
	Use:   "outputs",
	Short: "Show the stack's recorded outputs",
	RunE:  runStateOutputs,
}

func init() {
	stateCmd.PersistentFlags().StringVar(&stateStack, "stack", "", "Stack name (required)")
	stateCmd.MarkPersistentFlagRequired("stack")
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateOutputsCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context(), stateStack)
	if err != nil {
		return exitWith(2, err)
	}
	defer store.Unlock()

	snap := store.Snapshot()
	names := make([]string, 0, len(snap.Records))
	for name := range snap.Records {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rec := snap.Records[name]
		fmt.Printf("%s\t%s\t%s\n", name, rec.Kind, rec.ID)
	}
	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context(), stateStack)
	if err != nil {
		return exitWith(2, err)
	}
	defer store.Unlock()

	rec, ok := store.Get(args[0])
	if !ok {
		return exitWith(1, fmt.Errorf("no state recorded for %s", args[0]))
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runStateOutputs(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context(), stateStack)
	if err != nil {
		return exitWith(2, err)
	}
	defer store.Unlock()

	snap := store.Snapshot()
	if len(snap.Outputs) == 0 {
		fmt.Println("No outputs recorded.")
		return nil
	}
	data, err := json.MarshalIndent(snap.Outputs, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
