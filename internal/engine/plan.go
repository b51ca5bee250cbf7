// Package engine contains the reconciliation core: the dependency graph
// builder, the planner that diffs desired configuration against recorded
// state, the concurrent executor, and the drift detector.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/stackr-io/stackr/internal/catalog"
	"github.com/stackr-io/stackr/internal/ir"
	"github.com/stackr-io/stackr/internal/logging"
	"github.com/stackr-io/stackr/internal/provider"
	"github.com/stackr-io/stackr/internal/state"
)

// Engine orchestrates the lifecycle of resources.
type Engine struct {
	registry *provider.Registry
	catalog  *catalog.Catalog

	// Parallelism bounds concurrent entry execution.
	Parallelism int
	// Timeout caps each entry, polling included.
	Timeout time.Duration
	// Retry governs transient-error retries and poll backoff.
	Retry *RetryPolicy
}

func New(registry *provider.Registry, cat *catalog.Catalog) *Engine {
	return &Engine{
		registry:    registry,
		catalog:     cat,
		Parallelism: DefaultParallelism,
		Timeout:     DefaultTimeout,
		Retry:       DefaultRetryPolicy(),
	}
}

// Plan diffs the desired configuration against the state snapshot and returns
// an ordered change set: dependencies before dependents for creates and
// updates, reverse dependency order for deletes. Graph and plan errors are
// fatal; no partial plan is ever returned.
func (e *Engine) Plan(ctx context.Context, cfg *ir.Config, snap *state.Snapshot) (*ir.ChangeSet, error) {
	logging.Debug("creating plan", "stack", cfg.Stack,
		"resources", len(cfg.Resources), "state_records", len(snap.Records))

	graph, err := BuildGraph(cfg.Resources)
	if err != nil {
		return nil, err
	}

	for _, res := range cfg.Resources {
		if err := e.registry.Load(res.Provider); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
		}
	}

	if err := e.checkConflicts(cfg.Resources, snap); err != nil {
		return nil, err
	}

	cs := &ir.ChangeSet{
		Metadata: &ir.ChangeSetMetadata{
			Stack:        cfg.Stack,
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			TemplateHash: TemplateHash(cfg),
		},
		Summary: &ir.Summary{},
		Outputs: cfg.Outputs,
		Exports: cfg.Exports,
	}

	byName := make(map[string]*ir.Resource, len(cfg.Resources))
	for _, res := range cfg.Resources {
		byName[res.Name] = res
	}

	lookup := snap.Get
	// Entry id each node's dependents must wait on; empty for NoOp nodes.
	entryOf := make(map[string]string)
	actionOf := make(map[string]ir.Action)
	var replaceDeletes []*ir.ChangeSetEntry

	for _, name := range graph.CreationOrder() {
		res := byName[name]

		desired, missing := substituteImports(res.Properties, cfg.Imports)
		if len(missing) > 0 {
			return nil, &UnresolvedReferenceError{From: name, Ref: "!ImportValue " + missing[0]}
		}
		props, _ := resolveProperties(desired.(map[string]any), lookup)

		prereqs := e.prereqsFor(graph, name, entryOf)
		deps := graph.Dependencies(name)
		kind := e.catalog.Lookup(res.Kind)
		nodeHash := NodeHash(res)

		prior, exists := snap.Get(name)
		if !exists {
			entry := &ir.ChangeSetEntry{
				Address: name,
				Action:  ir.ActionCreate,
				Prereqs: prereqs,
				Deps:    deps,
				Desired: resourceWithProps(res, props),
				Diff:    createDiff(props),
				Hash:    nodeHash,
			}
			cs.Entries = append(cs.Entries, entry)
			cs.Summary.Create++
			entryOf[name] = entry.ID()
			actionOf[name] = ir.ActionCreate
			continue
		}

		diff := diffProperties(prior.Properties, props)
		action := ir.ActionNoOp
		if len(diff) > 0 {
			action = ir.ActionUpdate
			for prop, d := range diff {
				if !kind.MutableProp(prop) {
					d.ForcesReplacement = true
					action = ir.ActionReplace
				}
			}
		}

		// A dependency being created or replaced invalidates the reference
		// this node recorded; re-point it even if its own properties are
		// otherwise unchanged.
		if action == ir.ActionNoOp && e.referencesChangingDep(res, actionOf) {
			action = ir.ActionUpdate
		}

		switch action {
		case ir.ActionNoOp:
			cs.Entries = append(cs.Entries, &ir.ChangeSetEntry{
				Address: name,
				Action:  ir.ActionNoOp,
				Desired: resourceWithProps(res, props),
				Prior:   prior,
			})
			cs.Summary.NoOp++

		case ir.ActionUpdate:
			entry := &ir.ChangeSetEntry{
				Address: name,
				Action:  ir.ActionUpdate,
				Prereqs: prereqs,
				Deps:    deps,
				Desired: resourceWithProps(res, props),
				Prior:   prior,
				Diff:    diff,
				Hash:    nodeHash,
			}
			cs.Entries = append(cs.Entries, entry)
			cs.Summary.Update++
			entryOf[name] = entry.ID()
			actionOf[name] = ir.ActionUpdate

		case ir.ActionReplace:
			// Create-new first; delete-old only after every dependent has
			// migrated off the old resource, otherwise a dependent's
			// reference would transiently point at a resource marked for
			// deletion.
			createEntry := &ir.ChangeSetEntry{
				Address: name,
				Action:  ir.ActionReplace,
				Phase:   ir.PhaseCreateNew,
				Prereqs: prereqs,
				Deps:    deps,
				Desired: resourceWithProps(res, props),
				Prior:   prior,
				Diff:    diff,
				Hash:    nodeHash,
			}
			cs.Entries = append(cs.Entries, createEntry)
			cs.Summary.Replace++
			entryOf[name] = createEntry.ID()
			actionOf[name] = ir.ActionReplace

			replaceDeletes = append(replaceDeletes, &ir.ChangeSetEntry{
				Address: name,
				Action:  ir.ActionReplace,
				Phase:   ir.PhaseDeleteOld,
				Prior:   prior,
				// Prereqs filled below, once dependent entries are known.
			})
		}
	}

	// Resources in state but gone from the template are deleted, dependents
	// before their dependencies.
	deletes, err := e.planDeletes(snap, byName)
	if err != nil {
		return nil, err
	}

	// The delete-old half of each replace waits on its create-new half, on
	// every dependent entry in the desired graph, and on the deletion of any
	// removed record that still references the old resource.
	for _, del := range replaceDeletes {
		prereqs := []string{entryOf[del.Address]}
		for _, dep := range graph.Dependents(del.Address) {
			if id, ok := entryOf[dep]; ok {
				prereqs = append(prereqs, id)
			}
		}
		for _, doomed := range deletes {
			if recordDependsOn(doomed.Prior, del.Address) {
				prereqs = append(prereqs, doomed.ID())
			}
		}
		sort.Strings(prereqs)
		del.Prereqs = prereqs
		cs.Entries = append(cs.Entries, del)
	}

	cs.Entries = append(cs.Entries, deletes...)
	cs.Summary.Delete += len(deletes)

	return cs, nil
}

func recordDependsOn(rec *ir.StateRecord, name string) bool {
	for _, dep := range rec.Dependencies {
		if dep == name {
			return true
		}
	}
	return false
}

// PlanDestroy returns a change set deleting every recorded resource in
// reverse dependency order.
func (e *Engine) PlanDestroy(ctx context.Context, snap *state.Snapshot) (*ir.ChangeSet, error) {
	for _, rec := range snap.Records {
		if err := e.registry.Load(rec.Provider); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", rec.Provider, err)
		}
	}

	cs := &ir.ChangeSet{
		Metadata: &ir.ChangeSetMetadata{
			Stack:     snap.Stack,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Summary: &ir.Summary{},
	}

	deletes, err := e.planDeletes(snap, nil)
	if err != nil {
		return nil, err
	}
	cs.Entries = deletes
	cs.Summary.Delete = len(deletes)
	return cs, nil
}

// planDeletes builds delete entries for every record whose logical id is
// absent from keep, ordered so dependents are deleted before dependencies.
func (e *Engine) planDeletes(snap *state.Snapshot, keep map[string]*ir.Resource) ([]*ir.ChangeSetEntry, error) {
	doomed := make(map[string]*ir.StateRecord)
	for name, rec := range snap.Records {
		if _, kept := keep[name]; !kept {
			doomed[name] = rec
		}
	}
	if len(doomed) == 0 {
		return nil, nil
	}

	graph, err := BuildGraphFromState(doomed)
	if err != nil {
		return nil, err
	}

	entryID := make(map[string]string, len(doomed))
	var entries []*ir.ChangeSetEntry
	for _, name := range graph.DeletionOrder() {
		rec := doomed[name]
		entry := &ir.ChangeSetEntry{
			Address: name,
			Action:  ir.ActionDelete,
			Prior:   rec,
			Diff:    deleteDiff(rec.Properties),
		}
		// Deleting a resource waits on the deletion of everything that
		// depends on it.
		for _, dependent := range graph.Dependents(name) {
			if id, ok := entryID[dependent]; ok {
				entry.Prereqs = append(entry.Prereqs, id)
			}
		}
		sort.Strings(entry.Prereqs)
		entries = append(entries, entry)
		entryID[name] = entry.ID()
	}
	return entries, nil
}

// prereqsFor returns the entry ids of name's dependencies that have
// actionable entries, sorted for deterministic plans.
func (e *Engine) prereqsFor(graph *Graph, name string, entryOf map[string]string) []string {
	var prereqs []string
	for _, dep := range graph.Dependencies(name) {
		if id, ok := entryOf[dep]; ok {
			prereqs = append(prereqs, id)
		}
	}
	sort.Strings(prereqs)
	return prereqs
}

// referencesChangingDep reports whether res holds a reference expression
// pointing at a node planned for Create or Replace.
func (e *Engine) referencesChangingDep(res *ir.Resource, actionOf map[string]ir.Action) bool {
	for _, ref := range ir.CollectRefs(res.Properties) {
		switch actionOf[ref.Referent()] {
		case ir.ActionCreate, ir.ActionReplace:
			return true
		}
	}
	return false
}

// checkConflicts fails when two nodes of the same kind claim the same
// exclusive external identifier.
func (e *Engine) checkConflicts(resources []*ir.Resource, snap *state.Snapshot) error {
	claims := make(map[string][]string)
	for _, res := range resources {
		kind := e.catalog.Lookup(res.Kind)
		if kind.Identity == "" {
			continue
		}
		v, ok := res.Properties[kind.Identity]
		if !ok {
			continue
		}
		resolved, done := resolveValue(v, snap.Get)
		if !done {
			continue // identity derives from a resource not created yet
		}
		key := res.Kind + "\x00" + fmt.Sprintf("%v", resolved)
		claims[key] = append(claims[key], res.Name)
	}

	keys := make([]string, 0, len(claims))
	for k := range claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if addrs := claims[key]; len(addrs) > 1 {
			sort.Strings(addrs)
			kind, identity, _ := cutNul(key)
			return &PlanConflictError{Kind: kind, Identity: identity, Addresses: addrs}
		}
	}
	return nil
}

func cutNul(s string) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

// diffProperties compares a stored snapshot against resolved desired
// properties and returns the changed keys.
func diffProperties(prior, desired map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)

	allKeys := make(map[string]bool)
	for k := range prior {
		allKeys[k] = true
	}
	for k := range desired {
		allKeys[k] = true
	}

	for k := range allKeys {
		priorVal, inPrior := prior[k]
		desiredVal, inDesired := desired[k]

		switch {
		case !inPrior:
			diff[k] = &ir.PropertyDiff{After: desiredVal, Action: "create"}
		case !inDesired:
			diff[k] = &ir.PropertyDiff{Before: priorVal, Action: "delete"}
		case !reflect.DeepEqual(normalize(priorVal), normalize(desiredVal)):
			diff[k] = &ir.PropertyDiff{Before: priorVal, After: desiredVal, Action: "update"}
		}
	}
	if len(diff) == 0 {
		return nil
	}
	return diff
}

func createDiff(props map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)
	for k, v := range props {
		diff[k] = &ir.PropertyDiff{After: v, Action: "create"}
	}
	return diff
}

func deleteDiff(props map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)
	for k, v := range props {
		diff[k] = &ir.PropertyDiff{Before: v, Action: "delete"}
	}
	return diff
}

// resourceWithProps returns a copy of res carrying the given property bag.
func resourceWithProps(res *ir.Resource, props map[string]any) *ir.Resource {
	cp := *res
	cp.Properties = props
	return &cp
}

// TemplateHash returns a stable hash of the whole desired configuration.
func TemplateHash(cfg *ir.Config) string {
	type node struct {
		Name       string         `json:"name"`
		Kind       string         `json:"kind"`
		Provider   string         `json:"provider"`
		DependsOn  []string       `json:"dependsOn,omitempty"`
		Properties map[string]any `json:"properties,omitempty"`
	}
	nodes := make([]node, 0, len(cfg.Resources))
	for _, res := range cfg.Resources {
		nodes = append(nodes, node{res.Name, res.Kind, res.Provider, res.DependsOn, res.Properties})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })

	data, _ := json.Marshal(nodes)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NodeHash returns a stable hash of one resource declaration.
func NodeHash(res *ir.Resource) string {
	data, _ := json.Marshal(map[string]any{
		"kind":       res.Kind,
		"properties": res.Properties,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
