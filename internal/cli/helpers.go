package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/stackr-io/stackr/internal/catalog"
	"github.com/stackr-io/stackr/internal/engine"
	"github.com/stackr-io/stackr/internal/ir"
	"github.com/stackr-io/stackr/internal/provider"
	"github.com/stackr-io/stackr/internal/state"
	"github.com/stackr-io/stackr/internal/template"
	"github.com/stackr-io/stackr/providers/aws"
	"github.com/stackr-io/stackr/providers/docker"
	"github.com/stackr-io/stackr/providers/null"
)

// ExitError carries a process exit code through the cobra error path.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func exitWith(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

func newRegistry() *provider.Registry {
	registry := provider.NewRegistry()
	registry.RegisterFactory("null", func() (provider.Interface, error) { return null.New(), nil })
	registry.RegisterFactory("aws", func() (provider.Interface, error) { return aws.New(), nil })
	registry.RegisterFactory("docker", func() (provider.Interface, error) { return docker.New(), nil })
	return registry
}

func newEngine() *engine.Engine {
	eng := engine.New(newRegistry(), catalog.Default())
	if flagParallelism > 0 {
		eng.Parallelism = flagParallelism
	}
	if flagTimeout > 0 {
		eng.Timeout = flagTimeout
	}
	return eng
}

// loadTemplate reads the template named by args, defaulting to stack.yaml,
// and folds --import values into its import table.
func loadTemplate(args []string) (*ir.Config, error) {
	path := "stack.yaml"
	if len(args) > 0 {
		path = args[0]
	}
	cfg, err := template.Load(path)
	if err != nil {
		return nil, err
	}

	if len(flagImports) > 0 {
		if cfg.Imports == nil {
			cfg.Imports = make(map[string]any, len(flagImports))
		}
		for k, v := range flagImports {
			cfg.Imports[k] = v
		}
	}
	return cfg, nil
}

// openStore opens the configured state backend for the stack and acquires its
// lock. Callers must Unlock.
func openStore(ctx context.Context, stack string) (*state.Store, error) {
	cfg := &state.BackendConfig{Type: flagBackend, Config: map[string]string{}}
	for k, v := range flagBackendConfig {
		cfg.Config[k] = v
	}
	if cfg.Type == "local" && cfg.Config["path"] == "" {
		path := flagStatePath
		if path == "" {
			path = filepath.Join(".stackr", stack+".state.json")
		}
		cfg.Config["path"] = path
	}

	backend, err := state.NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	store, err := state.Open(ctx, backend, stack)
	if err != nil {
		return nil, err
	}
	if err := store.Lock(); err != nil {
		return nil, err
	}
	return store, nil
}

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
)

func actionSymbol(action ir.Action, phase ir.Phase) (symbol, color string) {
	switch action {
	case ir.ActionCreate:
		return "+", colorGreen
	case ir.ActionDelete:
		return "-", colorRed
	case ir.ActionUpdate:
		return "~", colorYellow
	case ir.ActionReplace:
		if phase == ir.PhaseDeleteOld {
			return "-", colorRed
		}
		return "-/+", colorYellow
	}
	return " ", colorReset
}

// renderChangeSet prints the plan in the familiar symbol-per-line format.
func renderChangeSet(cs *ir.ChangeSet) {
	for _, entry := range cs.Entries {
		if entry.Action == ir.ActionNoOp {
			continue
		}
		symbol, color := actionSymbol(entry.Action, entry.Phase)

		label := string(entry.Action)
		if entry.Phase == ir.PhaseCreateNew {
			label = "REPLACE (create new)"
		} else if entry.Phase == ir.PhaseDeleteOld {
			label = "REPLACE (delete old)"
		}

		kind := entryKind(entry)
		fmt.Printf("\n%s  # %s will be %s%s\n", color, entry.Address, label, colorReset)
		fmt.Printf("%s  %s resource %q %q {%s\n", color, symbol, kind, entry.Address, colorReset)
		renderDiff(entry)
		fmt.Printf("%s  }%s\n", color, colorReset)
	}

	s := cs.Summary
	fmt.Printf("\nPlan: %d to create, %d to update, %d to replace, %d to delete, %d unchanged.\n",
		s.Create, s.Update, s.Replace, s.Delete, s.NoOp)
}

func renderDiff(entry *ir.ChangeSetEntry) {
	keys := make([]string, 0, len(entry.Diff))
	for k := range entry.Diff {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		d := entry.Diff[k]
		suffix := ""
		if d.ForcesReplacement {
			suffix = " # forces replacement"
		}
		switch d.Action {
		case "create":
			fmt.Printf("%s      + %s = %s%s%s\n", colorGreen, k, formatValue(d.After), suffix, colorReset)
		case "delete":
			fmt.Printf("%s      - %s = %s%s\n", colorRed, k, formatValue(d.Before), colorReset)
		case "update":
			fmt.Printf("%s      ~ %s = %s -> %s%s%s\n", colorYellow, k, formatValue(d.Before), formatValue(d.After), suffix, colorReset)
		}
	}
}

func entryKind(entry *ir.ChangeSetEntry) string {
	if entry.Desired != nil {
		return entry.Desired.Kind
	}
	if entry.Prior != nil {
		return entry.Prior.Kind
	}
	return ""
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	case *ir.RefExpr:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// reportApply prints per-entry outcomes as they happen.
func reportApply(ev engine.ApplyEvent) {
	id := ev.Entry.ID()
	switch ev.Status {
	case "started":
		fmt.Printf("%s: %s...\n", id, strings.ToLower(string(ev.Entry.Action)))
	case "completed":
		fmt.Printf("%s: done (%s)\n", id, ev.Duration.Round(10*time.Millisecond))
	case "failed":
		fmt.Printf("%s%s: failed: %v%s\n", colorRed, id, ev.Error, colorReset)
	case "skipped":
		fmt.Printf("%s: skipped (dependency failed)\n", id)
	}
}
