package engine

import (
	"fmt"
	"strings"
	"time"
)

// CycleError reports a reference cycle found while building the graph.
type CycleError struct {
	Path []string // the cycle, first node repeated last
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}

// UnresolvedReferenceError reports a reference to a node that is neither
// declared in the template nor available as an external import.
type UnresolvedReferenceError struct {
	From string // referencing node
	Ref  string // the reference as written
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("resource %s references %s, which is not declared in the template", e.From, e.Ref)
}

// PlanConflictError reports two entries claiming the same exclusive external
// identifier for the same resource kind.
type PlanConflictError struct {
	Kind      string
	Identity  string // the claimed external identifier
	Addresses []string
}

func (e *PlanConflictError) Error() string {
	return fmt.Sprintf("plan conflict: %s claimed by %s (kind %s)",
		e.Identity, strings.Join(e.Addresses, " and "), e.Kind)
}

// TimeoutError reports that a resource operation did not reach a terminal
// state within its allotted time.
type TimeoutError struct {
	Address string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("resource %s did not reach a terminal state within %s", e.Address, e.Elapsed)
}

// LeaseConflictError reports a concurrent conflicting operation holding the
// lease for a resource id.
type LeaseConflictError struct {
	Address string
	Holder  string
}

func (e *LeaseConflictError) Error() string {
	return fmt.Sprintf("resource %s is leased by %s", e.Address, e.Holder)
}
