package ir

// Status is the lifecycle state of a resource node.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusCreating Status = "CREATING"
	StatusActive   Status = "ACTIVE"
	StatusUpdating Status = "UPDATING"
	StatusDeleting Status = "DELETING"
	StatusFailed   Status = "FAILED"
	StatusDeleted  Status = "DELETED"
	StatusSkipped  Status = "SKIPPED"
)

// Resource represents a single declared resource node. The property bag maps
// attribute names to literal values or *RefExpr references (possibly nested
// inside maps and lists).
type Resource struct {
	Name       string         // logical id, unique within a stack
	Kind       string         // e.g. "aws:AutoScaling.AutoScalingGroup"
	Provider   string         // provider responsible for this kind
	DependsOn  []string       // explicit dependencies by logical id
	Properties map[string]any
	Status     Status
}

// Config represents a fully loaded stack template.
type Config struct {
	Stack     string
	Resources []*Resource
	Outputs   map[string]any // values may be references
	Exports   map[string]any // values published for !ImportValue in other stacks
	Imports   map[string]any // externally supplied values for !ImportValue
}
