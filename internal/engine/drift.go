package engine

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/stackr-io/stackr/internal/logging"
	"github.com/stackr-io/stackr/internal/state"
)

// DefaultDriftInterval is the default period between drift sweeps.
const DefaultDriftInterval = 5 * time.Minute

// FieldDrift is one property whose live value departed from the recorded one.
type FieldDrift struct {
	Path   string
	Stored any
	Live   any
}

// DriftEvent reports one drifted resource. Missing means the resource no
// longer exists on the provider side at all.
type DriftEvent struct {
	Address string
	Kind    string
	Missing bool
	Fields  []FieldDrift
}

func (d *DriftEvent) String() string {
	if d.Missing {
		return fmt.Sprintf("%s (%s): resource no longer exists", d.Address, d.Kind)
	}
	return fmt.Sprintf("%s (%s): %d drifted field(s)", d.Address, d.Kind, len(d.Fields))
}

// Detector periodically compares recorded state against live provider
// observations. It only reports; it never mutates state or resources.
type Detector struct {
	engine   *Engine
	store    *state.Store
	Interval time.Duration
}

func NewDetector(e *Engine, store *state.Store) *Detector {
	return &Detector{engine: e, store: store, Interval: DefaultDriftInterval}
}

// DetectOnce sweeps every recorded resource once and returns the drift found,
// sorted by address. Provider and describe failures for a resource are logged
// and skipped so one flaky provider cannot mask drift elsewhere.
func (d *Detector) DetectOnce(ctx context.Context) ([]*DriftEvent, error) {
	snap := d.store.Snapshot()

	names := make([]string, 0, len(snap.Records))
	for name := range snap.Records {
		names = append(names, name)
	}
	sort.Strings(names)

	var events []*DriftEvent
	for _, name := range names {
		rec := snap.Records[name]
		if err := d.engine.registry.Load(rec.Provider); err != nil {
			logging.Warn("drift check failed", "resource", name, "error", err)
			continue
		}
		prov, err := d.engine.registry.Get(rec.Provider)
		if err != nil {
			logging.Warn("drift check failed", "resource", name, "error", err)
			continue
		}

		obs, err := prov.Describe(ctx, rec.Kind, rec.ID)
		if err != nil {
			if ctx.Err() != nil {
				return events, ctx.Err()
			}
			logging.Warn("drift check failed", "resource", name, "error", err)
			continue
		}

		if !obs.Exists {
			events = append(events, &DriftEvent{Address: name, Kind: rec.Kind, Missing: true})
			continue
		}
		if fields := driftFields(rec.Properties, obs.Properties); len(fields) > 0 {
			events = append(events, &DriftEvent{Address: name, Kind: rec.Kind, Fields: fields})
		}
	}
	return events, nil
}

// Run sweeps on the configured interval until ctx is cancelled, invoking
// report after each sweep that found drift.
func (d *Detector) Run(ctx context.Context, report func([]*DriftEvent)) error {
	interval := d.Interval
	if interval <= 0 {
		interval = DefaultDriftInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		events, err := d.DetectOnce(ctx)
		if err != nil && ctx.Err() == nil {
			return err
		}
		if len(events) > 0 && report != nil {
			report(events)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// driftFields compares the recorded property snapshot against the live
// observation. Only properties present in the record are compared; providers
// report plenty of attributes the template never managed.
func driftFields(stored, live map[string]any) []FieldDrift {
	keys := make([]string, 0, len(stored))
	for k := range stored {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var fields []FieldDrift
	for _, k := range keys {
		want := stored[k]
		got, present := live[k]
		if !present {
			fields = append(fields, FieldDrift{Path: k, Stored: want})
			continue
		}
		if !reflect.DeepEqual(normalize(want), normalize(got)) {
			fields = append(fields, FieldDrift{Path: k, Stored: want, Live: got})
		}
	}
	return fields
}
