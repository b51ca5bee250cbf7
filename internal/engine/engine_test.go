package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/stackr-io/stackr/internal/catalog"
	"github.com/stackr-io/stackr/internal/ir"
	"github.com/stackr-io/stackr/internal/provider"
	"github.com/stackr-io/stackr/internal/state"
)

// fakeProvider is a scriptable in-memory provider. Operations append to calls
// so tests can assert ordering.
type fakeProvider struct {
	mu     sync.Mutex
	nextID int

	resources map[string]map[string]any
	calls     []string
	status    string // Describe status, "active" if unset

	createErr map[string]error // resource name -> error to return from Create
	updateErr map[string]error // id -> error to return from Update
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		resources: make(map[string]map[string]any),
		createErr: make(map[string]error),
		updateErr: make(map[string]error),
	}
}

func (f *fakeProvider) Create(ctx context.Context, kind, name string, props map[string]any) (*provider.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create "+name)

	if err := f.createErr[name]; err != nil {
		return nil, err
	}
	f.nextID++
	id := fmt.Sprintf("%s-%d", name, f.nextID)
	f.resources[id] = props
	return &provider.Result{ID: id, Outputs: map[string]any{"arn": "arn:fake:" + id}}, nil
}

func (f *fakeProvider) Update(ctx context.Context, kind, id string, props map[string]any) (*provider.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update "+id)

	if err := f.updateErr[id]; err != nil {
		return nil, err
	}
	if _, ok := f.resources[id]; !ok {
		return nil, provider.Permanent("update", kind, fmt.Errorf("no such resource %s", id))
	}
	f.resources[id] = props
	return &provider.Result{ID: id, Outputs: map[string]any{"arn": "arn:fake:" + id}}, nil
}

func (f *fakeProvider) Delete(ctx context.Context, kind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete "+id)
	delete(f.resources, id)
	return nil
}

func (f *fakeProvider) Describe(ctx context.Context, kind, id string) (*provider.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	props, ok := f.resources[id]
	if !ok {
		return &provider.Observation{Exists: false}, nil
	}
	status := f.status
	if status == "" {
		status = "active"
	}
	return &provider.Observation{
		Exists:     true,
		Status:     status,
		Properties: props,
		Outputs:    map[string]any{"arn": "arn:fake:" + id},
	}, nil
}

func (f *fakeProvider) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// testEngine wires an engine around a single fake provider registered under
// every name the tests use.
func testEngine(fake *fakeProvider) *Engine {
	reg := provider.NewRegistry()
	reg.Register("null", fake)
	reg.Register("aws", fake)

	e := New(reg, catalog.Default())
	e.Retry = &RetryPolicy{MaxRetries: 0, BaseDelay: 0, MaxDelay: 0}
	return e
}

func emptySnapshot() *state.Snapshot {
	return &state.Snapshot{Records: make(map[string]*ir.StateRecord)}
}

func snapshotOf(records ...*ir.StateRecord) *state.Snapshot {
	snap := emptySnapshot()
	for _, rec := range records {
		snap.Records[rec.Name] = rec
	}
	return snap
}

// memBackend keeps snapshot bytes in memory for store tests.
type memBackend struct {
	mu   sync.Mutex
	data []byte
}

func (b *memBackend) Read(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data, nil
}

func (b *memBackend) Write(ctx context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append([]byte(nil), data...)
	return nil
}

func (b *memBackend) Lock() error   { return nil }
func (b *memBackend) Unlock() error { return nil }

func testStore(records ...*ir.StateRecord) *state.Store {
	store, err := state.Open(context.Background(), &memBackend{}, "test")
	if err != nil {
		panic(err)
	}
	for _, rec := range records {
		store.Put(rec.Name, rec)
	}
	return store
}

func entryByID(cs *ir.ChangeSet, id string) *ir.ChangeSetEntry {
	for _, e := range cs.Entries {
		if e.ID() == id && e.Action != ir.ActionNoOp {
			return e
		}
	}
	return nil
}

func noopEntry(cs *ir.ChangeSet, address string) *ir.ChangeSetEntry {
	for _, e := range cs.Entries {
		if e.Address == address && e.Action == ir.ActionNoOp {
			return e
		}
	}
	return nil
}
