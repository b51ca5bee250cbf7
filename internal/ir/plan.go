package ir

// Action is the planned operation for a change-set entry.
type Action string

const (
	ActionNoOp    Action = "NOOP"
	ActionCreate  Action = "CREATE"
	ActionUpdate  Action = "UPDATE"
	ActionReplace Action = "REPLACE"
	ActionDelete  Action = "DELETE"
)

// Phase distinguishes the two sub-entries a Replace decomposes into. The
// create-new half must reach Active before any dependent resolves its
// reference; the delete-old half runs only after all dependents migrated.
type Phase string

const (
	PhaseNone      Phase = ""
	PhaseCreateNew Phase = "create-new"
	PhaseDeleteOld Phase = "delete-old"
)

// ChangeSetEntry is one ordered step of a change set. Prereqs lists the entry
// ids that must reach terminal success before this entry may start; it never
// contains the entry's own id.
type ChangeSetEntry struct {
	Address string
	Action  Action
	Phase   Phase
	Prereqs []string
	Deps    []string // logical ids of all dependencies, recorded into state
	Desired *Resource
	Prior   *StateRecord
	Diff    map[string]*PropertyDiff
	Hash    string // template hash of the desired node, recorded on success
}

// ID returns the key other entries use in their Prereqs lists. The two halves
// of a Replace carry distinct ids.
func (e *ChangeSetEntry) ID() string {
	switch e.Phase {
	case PhaseCreateNew:
		return e.Address + " (new)"
	case PhaseDeleteOld:
		return e.Address + " (old)"
	}
	return e.Address
}

// PropertyDiff describes the planned change to one property.
type PropertyDiff struct {
	Before            any
	After             any
	Action            string // "create", "update", "delete"
	ForcesReplacement bool
}

// ChangeSet is an ordered execution plan. Entries appear in dependency order:
// every prerequisite's index precedes its dependents.
type ChangeSet struct {
	Metadata *ChangeSetMetadata
	Entries  []*ChangeSetEntry
	Summary  *Summary
	Outputs  map[string]any
	Exports  map[string]any
}

type ChangeSetMetadata struct {
	Stack        string
	Timestamp    string
	TemplateHash string
}

type Summary struct {
	Create  int
	Update  int
	Replace int
	Delete  int
	NoOp    int
}

// Empty reports whether the change set contains no actionable entries.
// NoOp entries are listed for visibility but never executed.
func (c *ChangeSet) Empty() bool {
	for _, e := range c.Entries {
		if e.Action != ActionNoOp {
			return false
		}
	}
	return true
}
