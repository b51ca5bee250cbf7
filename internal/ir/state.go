package ir

// StateRecord is the persisted record of one successfully applied resource.
// A record exists if and only if the resource was created and not yet deleted.
type StateRecord struct {
	Name         string         `json:"name"`
	Kind         string         `json:"kind"`
	Provider     string         `json:"provider"`
	ID           string         `json:"id"`         // provider-assigned identifier
	Properties   map[string]any `json:"properties"` // resolved property snapshot
	Outputs      map[string]any `json:"outputs"`    // provider outputs (ARNs, DNS names, ...)
	Hash         string         `json:"hash"`       // template hash at last successful apply
	Dependencies []string       `json:"dependencies,omitempty"`
}
