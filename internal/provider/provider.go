// Package provider defines the contract between the reconciliation engine and
// the cloud APIs that actually own the resources. Providers expose plain CRUD
// per resource kind; all ordering, diffing and retry policy lives in the
// engine.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Result is returned by Create and Update: the provider-assigned identifier
// plus any output attributes (ARNs, DNS names, versions) dependents may
// reference.
type Result struct {
	ID      string
	Outputs map[string]any
}

// Observation is the live view of a resource returned by Describe.
type Observation struct {
	Exists     bool
	Status     string // provider-side lifecycle status, e.g. "active", "provisioning"
	Properties map[string]any
	Outputs    map[string]any
}

// Interface is implemented by every resource provider. Operations may be
// asynchronous on the provider side; the engine polls Describe until the
// resource-kind catalog reports a terminal status.
type Interface interface {
	Create(ctx context.Context, kind, name string, props map[string]any) (*Result, error)
	Update(ctx context.Context, kind, id string, props map[string]any) (*Result, error)
	Delete(ctx context.Context, kind, id string) error
	Describe(ctx context.Context, kind, id string) (*Observation, error)
}

// Error wraps a provider API failure with its retry classification. Transient
// errors (throttling, eventual-consistency blips) are retried by the engine;
// permanent errors fail the resource immediately.
type Error struct {
	Op        string // "create", "update", "delete", "describe"
	Kind      string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	class := "permanent"
	if e.Transient {
		class = "transient"
	}
	return fmt.Sprintf("%s %s: %s provider error: %v", e.Op, e.Kind, class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable provider error.
func Transient(op, kind string, err error) error {
	return &Error{Op: op, Kind: kind, Transient: true, Err: err}
}

// Permanent wraps err as a non-retryable provider error.
func Permanent(op, kind string, err error) error {
	return &Error{Op: op, Kind: kind, Transient: false, Err: err}
}

// IsTransient reports whether err is a provider error marked retryable.
func IsTransient(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Transient
}
