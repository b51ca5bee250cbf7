package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stackr-io/stackr/internal/ir"
	"github.com/stackr-io/stackr/internal/logging"
	"github.com/stackr-io/stackr/internal/provider"
	"github.com/stackr-io/stackr/internal/state"
)

// DefaultParallelism bounds how many entries execute concurrently.
const DefaultParallelism = 10

// EntryStatus is the terminal outcome of one change-set entry.
type EntryStatus string

const (
	EntryApplied EntryStatus = "applied"
	EntryFailed  EntryStatus = "failed"
	EntrySkipped EntryStatus = "skipped"
)

// ApplyEvent reports progress for one entry.
type ApplyEvent struct {
	Entry    *ir.ChangeSetEntry
	Status   string // "started", "completed", "failed", "skipped"
	Duration time.Duration
	Error    error
}

// ApplyCallback is invoked for each apply event if set.
type ApplyCallback func(event ApplyEvent)

// Outcome is the per-entry result of an apply run.
type Outcome struct {
	ID       string
	Address  string
	Action   ir.Action
	Phase    ir.Phase
	Status   EntryStatus
	Err      error
	Duration time.Duration
}

// Result summarizes an apply run. Execution failures are partial by design:
// unaffected subtrees complete and the run reports per-entry outcomes rather
// than a single pass/fail bit.
type Result struct {
	Outcomes []*Outcome
	Applied  int
	Failed   int
	Skipped  int
}

// Err returns nil when every entry applied, otherwise the joined failures.
func (r *Result) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Status == EntryFailed && o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.ID, o.Err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d resource(s) failed: %w", len(errs), errors.Join(errs...))
}

// Apply executes a change set against the providers, updating the store as
// entries succeed. Entries run concurrently up to e.Parallelism; an entry
// starts only after every prerequisite reached terminal success. When an
// entry fails, everything transitively depending on it is skipped while
// independent subtrees continue. Cancelling ctx skips entries that have not
// started and lets in-flight entries finish their current provider call.
func (e *Engine) Apply(ctx context.Context, cs *ir.ChangeSet, store *state.Store, callback ApplyCallback) *Result {
	emit := func(ev ApplyEvent) {
		if callback != nil {
			callback(ev)
		}
	}

	var entries []*ir.ChangeSetEntry
	for _, entry := range cs.Entries {
		if entry.Action != ir.ActionNoOp {
			entries = append(entries, entry)
		}
	}

	result := &Result{}
	var resultMu sync.Mutex
	record := func(o *Outcome) {
		resultMu.Lock()
		defer resultMu.Unlock()
		result.Outcomes = append(result.Outcomes, o)
		switch o.Status {
		case EntryApplied:
			result.Applied++
		case EntryFailed:
			result.Failed++
		case EntrySkipped:
			result.Skipped++
		}
	}

	known := make(map[string]bool, len(entries))
	for _, entry := range entries {
		known[entry.ID()] = true
	}

	var (
		mu        sync.Mutex
		cond      = sync.NewCond(&mu)
		completed = make(map[string]bool)
		failed    = make(map[string]bool)
	)
	sem := make(chan struct{}, e.parallelism())
	leases := newLeaseTable()

	var wg sync.WaitGroup
	for _, entry := range entries {
		wg.Add(1)
		go func(entry *ir.ChangeSetEntry) {
			defer wg.Done()
			id := entry.ID()

			// Wait until every prerequisite reached terminal success, or a
			// prerequisite failed, or the run was cancelled.
			mu.Lock()
			for {
				if ctx.Err() != nil {
					failed[id] = true
					mu.Unlock()
					cond.Broadcast()
					setStatus(entry, ir.StatusSkipped)
					record(&Outcome{ID: id, Address: entry.Address, Action: entry.Action, Phase: entry.Phase, Status: EntrySkipped})
					emit(ApplyEvent{Entry: entry, Status: "skipped"})
					return
				}
				ready := true
				blocked := false
				for _, pre := range entry.Prereqs {
					if !known[pre] {
						continue // prerequisite was a no-op, already satisfied
					}
					if failed[pre] {
						blocked = true
						break
					}
					if !completed[pre] {
						ready = false
					}
				}
				if blocked {
					failed[id] = true
					mu.Unlock()
					cond.Broadcast()
					setStatus(entry, ir.StatusSkipped)
					record(&Outcome{ID: id, Address: entry.Address, Action: entry.Action, Phase: entry.Phase, Status: EntrySkipped})
					emit(ApplyEvent{Entry: entry, Status: "skipped"})
					return
				}
				if ready {
					break
				}
				cond.Wait()
			}
			mu.Unlock()

			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			emit(ApplyEvent{Entry: entry, Status: "started"})
			err := e.applyEntry(ctx, entry, store, leases)
			dur := time.Since(start)

			mu.Lock()
			if err != nil {
				failed[id] = true
			} else {
				completed[id] = true
			}
			mu.Unlock()
			cond.Broadcast()

			if err != nil {
				logging.Error("apply failed", "entry", id, "error", err)
				setStatus(entry, ir.StatusFailed)
				record(&Outcome{ID: id, Address: entry.Address, Action: entry.Action, Phase: entry.Phase, Status: EntryFailed, Err: err, Duration: dur})
				emit(ApplyEvent{Entry: entry, Status: "failed", Duration: dur, Error: err})
				return
			}
			record(&Outcome{ID: id, Address: entry.Address, Action: entry.Action, Phase: entry.Phase, Status: EntryApplied, Duration: dur})
			emit(ApplyEvent{Entry: entry, Status: "completed", Duration: dur})
		}(entry)
	}
	wg.Wait()

	sort.Slice(result.Outcomes, func(i, j int) bool { return result.Outcomes[i].ID < result.Outcomes[j].ID })

	e.recordStackValues(cs, store)
	return result
}

// applyEntry performs one provider operation end to end: lease, resolve,
// invoke with retries, poll to terminal state, record.
func (e *Engine) applyEntry(ctx context.Context, entry *ir.ChangeSetEntry, store *state.Store, leases *leaseTable) error {
	id := entry.ID()
	if err := leases.Acquire(entry.Address, id); err != nil {
		return err
	}
	defer leases.Release(entry.Address)

	opCtx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	switch {
	case entry.Action == ir.ActionDelete, entry.Phase == ir.PhaseDeleteOld:
		return e.applyDelete(opCtx, entry, store)
	default:
		return e.applyWrite(opCtx, entry, store)
	}
}

func (e *Engine) applyWrite(ctx context.Context, entry *ir.ChangeSetEntry, store *state.Store) error {
	res := entry.Desired
	prov, err := e.registry.Get(res.Provider)
	if err != nil {
		return err
	}

	// Prerequisites are all Active by now, so every reference must resolve.
	props, ok := resolveProperties(res.Properties, store.Get)
	if !ok {
		return fmt.Errorf("resource %s still holds unresolved references", entry.Address)
	}

	creating := entry.Action == ir.ActionCreate || entry.Phase == ir.PhaseCreateNew
	if creating {
		setStatus(entry, ir.StatusCreating)
	} else {
		setStatus(entry, ir.StatusUpdating)
	}

	var result *providerResult
	err = RetryTransient(ctx, e.Retry, func() error {
		var opErr error
		result, opErr = invokeWrite(ctx, prov, res, entry, creating, props)
		return opErr
	})
	if err != nil {
		return err
	}

	outputs, err := e.pollUntilReady(ctx, entry, prov, res.Kind, result.id)
	if err != nil {
		return err
	}
	for k, v := range result.outputs {
		if _, ok := outputs[k]; !ok {
			outputs[k] = v
		}
	}

	store.Put(entry.Address, &ir.StateRecord{
		Name:         entry.Address,
		Kind:         res.Kind,
		Provider:     res.Provider,
		ID:           result.id,
		Properties:   props,
		Outputs:      outputs,
		Hash:         entry.Hash,
		Dependencies: entry.Deps,
	})
	setStatus(entry, ir.StatusActive)
	return nil
}

func (e *Engine) applyDelete(ctx context.Context, entry *ir.ChangeSetEntry, store *state.Store) error {
	prior := entry.Prior
	prov, err := e.registry.Get(prior.Provider)
	if err != nil {
		return err
	}

	setStatus(entry, ir.StatusDeleting)
	err = RetryTransient(ctx, e.Retry, func() error {
		return prov.Delete(ctx, prior.Kind, prior.ID)
	})
	if err != nil {
		return err
	}

	// The delete-old half of a replace tears down the superseded resource;
	// the record already describes its replacement.
	if entry.Phase != ir.PhaseDeleteOld {
		store.Delete(entry.Address)
	}
	setStatus(entry, ir.StatusDeleted)
	return nil
}

type providerResult struct {
	id      string
	outputs map[string]any
}

func invokeWrite(ctx context.Context, prov provider.Interface, res *ir.Resource, entry *ir.ChangeSetEntry, creating bool, props map[string]any) (*providerResult, error) {
	if creating {
		r, err := prov.Create(ctx, res.Kind, res.Name, props)
		if err != nil {
			return nil, err
		}
		return &providerResult{id: r.ID, outputs: r.Outputs}, nil
	}
	r, err := prov.Update(ctx, res.Kind, entry.Prior.ID, props)
	if err != nil {
		return nil, err
	}
	id := r.ID
	if id == "" {
		id = entry.Prior.ID
	}
	return &providerResult{id: id, outputs: r.Outputs}, nil
}

// pollUntilReady polls Describe with bounded exponential backoff until the
// catalog reports a terminal state. Transient describe errors keep polling;
// context expiry surfaces as a TimeoutError.
func (e *Engine) pollUntilReady(ctx context.Context, entry *ir.ChangeSetEntry, prov provider.Interface, kindName, id string) (map[string]any, error) {
	kind := e.catalog.Lookup(kindName)
	policy := e.retryPolicy()
	start := time.Now()

	for attempt := 0; ; attempt++ {
		obs, err := prov.Describe(ctx, kindName, id)
		if err == nil && obs.Exists && kind.Ready(obs.Status) {
			if obs.Outputs != nil {
				return obs.Outputs, nil
			}
			return map[string]any{}, nil
		}
		if err != nil && !provider.IsTransient(err) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, &TimeoutError{Address: entry.Address, Elapsed: time.Since(start).Round(time.Millisecond)}
		case <-time.After(backoff(attempt, policy.BaseDelay, policy.MaxDelay)):
		}
	}
}

// recordStackValues resolves the template's outputs and exports against the
// freshly updated store and records them alongside the template hash.
func (e *Engine) recordStackValues(cs *ir.ChangeSet, store *state.Store) {
	if cs.Outputs != nil {
		if out, ok := resolveProperties(cs.Outputs, store.Get); ok {
			store.SetOutputs(out)
		}
	}
	if cs.Exports != nil {
		if exp, ok := resolveProperties(cs.Exports, store.Get); ok {
			store.SetExports(exp)
		}
	}
	if cs.Metadata != nil && cs.Metadata.TemplateHash != "" {
		store.SetTemplateHash(cs.Metadata.TemplateHash)
	}
}

func (e *Engine) parallelism() int {
	if e.Parallelism > 0 {
		return e.Parallelism
	}
	return DefaultParallelism
}

func (e *Engine) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return DefaultTimeout
}

func (e *Engine) retryPolicy() *RetryPolicy {
	if e.Retry != nil {
		return e.Retry
	}
	return DefaultRetryPolicy()
}

func setStatus(entry *ir.ChangeSetEntry, s ir.Status) {
	if entry.Desired != nil {
		entry.Desired.Status = s
	}
}
