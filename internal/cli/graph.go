package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackr-io/stackr/internal/engine"
)

var graphCmd = &cobra.Command{
	Use:   "graph [template]",
	Short: "Output the dependency graph in DOT format",
	Long: `Prints the template's resource dependency graph in Graphviz DOT
format. Pipe the output to 'dot' to render an image:

  stackr graph | dot -Tpng > graph.png`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	cfg, err := loadTemplate(args)
	if err != nil {
		return exitWith(2, err)
	}

	graph, err := engine.BuildGraph(cfg.Resources)
	if err != nil {
		return exitWith(2, err)
	}

	fmt.Printf("digraph %q {\n", cfg.Stack)
	fmt.Println("  rankdir = \"BT\";")
	fmt.Println("  node [shape = rect];")
	fmt.Println()

	for _, name := range graph.CreationOrder() {
		fmt.Printf("  %q;\n", name)
	}
	fmt.Println()
	for _, name := range graph.CreationOrder() {
		for _, dep := range graph.Dependencies(name) {
			fmt.Printf("  %q -> %q;\n", name, dep)
		}
	}
	fmt.Println("}")
	return nil
}
