// Package state persists the last-known state of every managed resource.
// The executor is the only writer; the planner and drift detector work from
// read-only snapshots. Snapshots are durable across process restarts so a
// crashed reconciliation resumes instead of re-creating everything.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stackr-io/stackr/internal/ir"
)

const snapshotVersion = 1

// Snapshot is the full persisted state of one stack. Records are keyed by
// logical resource id.
type Snapshot struct {
	Version      int                        `json:"version"`
	Serial       int                        `json:"serial"`
	Lineage      string                     `json:"lineage"`
	Stack        string                     `json:"stack"`
	TemplateHash string                     `json:"templateHash,omitempty"`
	Written      string                     `json:"written,omitempty"`
	Records      map[string]*ir.StateRecord `json:"resources"`
	Outputs      map[string]any             `json:"outputs,omitempty"`
	Exports      map[string]any             `json:"exports,omitempty"`
}

// Get returns the record for a logical id.
func (s *Snapshot) Get(name string) (*ir.StateRecord, bool) {
	rec, ok := s.Records[name]
	return rec, ok
}

// Store wraps a Snapshot with single-writer mutation and durable persistence.
// Writers replace records wholesale via Put; records handed out by Get and
// Snapshot are never mutated in place.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	snap    *Snapshot
}

// Open loads the stack's snapshot from the backend, initializing a fresh one
// with a new lineage if none exists.
func Open(ctx context.Context, backend Backend, stack string) (*Store, error) {
	raw, err := backend.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	snap := &Snapshot{
		Version: snapshotVersion,
		Stack:   stack,
		Lineage: uuid.NewString(),
		Records: make(map[string]*ir.StateRecord),
	}
	if len(raw) > 0 {
		plain, err := Decrypt(raw)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(plain, snap); err != nil {
			return nil, fmt.Errorf("failed to parse state: %w", err)
		}
		if snap.Version != snapshotVersion {
			return nil, fmt.Errorf("unsupported state version %d", snap.Version)
		}
		if snap.Records == nil {
			snap.Records = make(map[string]*ir.StateRecord)
		}
	}

	return &Store{backend: backend, snap: snap}, nil
}

// Get returns the record for a logical id.
func (s *Store) Get(name string) (*ir.StateRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.snap.Records[name]
	return rec, ok
}

// Put records a successful create or update.
func (s *Store) Put(name string, rec *ir.StateRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Records[name] = rec
}

// Delete removes the record after a confirmed delete.
func (s *Store) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snap.Records, name)
}

// Snapshot returns a point-in-time copy safe for concurrent readers.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := *s.snap
	cp.Records = make(map[string]*ir.StateRecord, len(s.snap.Records))
	for k, v := range s.snap.Records {
		cp.Records[k] = v
	}
	return &cp
}

// SetOutputs replaces the stack-level outputs.
func (s *Store) SetOutputs(outputs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Outputs = outputs
}

// SetExports replaces the values this stack publishes for cross-stack imports.
func (s *Store) SetExports(exports map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Exports = exports
}

// SetTemplateHash records the hash of the last-applied template.
func (s *Store) SetTemplateHash(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.TemplateHash = hash
}

// Save persists the snapshot, bumping its serial.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	s.snap.Serial++
	s.snap.Written = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(s.snap, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	sealed, err := Encrypt(data)
	if err != nil {
		return err
	}
	if err := s.backend.Write(ctx, sealed); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return nil
}

// Lock acquires the backend's exclusive lock on the stack state.
func (s *Store) Lock() error { return s.backend.Lock() }

// Unlock releases the backend lock.
func (s *Store) Unlock() error { return s.backend.Unlock() }
