// Package null implements a provider whose resources exist only in state.
// A null resource is replaced whenever its triggers change, which makes it
// useful for wiring ordering constraints and for exercising the engine in
// tests without touching a cloud API.
package null

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/stackr-io/stackr/internal/provider"
)

type Provider struct {
	mu        sync.Mutex
	resources map[string]map[string]any // id -> properties
}

func New() *Provider {
	return &Provider{resources: make(map[string]map[string]any)}
}

func (p *Provider) Create(ctx context.Context, kind, name string, props map[string]any) (*provider.Result, error) {
	if kind != "null_resource" {
		return nil, provider.Permanent("create", kind, fmt.Errorf("unsupported kind"))
	}

	id := fmt.Sprintf("null-%s-%s", name, uuid.NewString()[:8])
	p.mu.Lock()
	p.resources[id] = props
	p.mu.Unlock()

	return &provider.Result{ID: id, Outputs: map[string]any{"id": id}}, nil
}

func (p *Provider) Update(ctx context.Context, kind, id string, props map[string]any) (*provider.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.resources[id]; !ok {
		return nil, provider.Permanent("update", kind, fmt.Errorf("resource %s not found", id))
	}
	p.resources[id] = props
	return &provider.Result{ID: id, Outputs: map[string]any{"id": id}}, nil
}

func (p *Provider) Delete(ctx context.Context, kind, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.resources, id)
	return nil
}

func (p *Provider) Describe(ctx context.Context, kind, id string) (*provider.Observation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	props, ok := p.resources[id]
	if !ok {
		return &provider.Observation{Exists: false}, nil
	}
	return &provider.Observation{
		Exists:     true,
		Status:     "active",
		Properties: props,
		Outputs:    map[string]any{"id": id},
	}, nil
}
