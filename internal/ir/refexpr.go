package ir

import (
	"encoding/json"
	"fmt"
)

// RefKind discriminates the variants of a reference expression.
type RefKind string

const (
	RefLiteral RefKind = "literal"
	RefByID    RefKind = "ref"     // !Ref: the referent's provider-assigned id
	RefGetAttr RefKind = "getatt"  // !GetAtt: a named output of the referent
	RefImport  RefKind = "import"  // !ImportValue: a value exported by another stack
)

// RefExpr is a tagged variant over the ways a property value can be produced:
// a literal, the id of another resource, an attribute of another resource, or
// a value imported from outside the stack. References are resolved against the
// state store at plan and apply time, never via live lookup.
type RefExpr struct {
	Kind      RefKind
	Value     any    // RefLiteral
	Target    string // RefByID, RefGetAttr: logical id of the referent
	Attribute string // RefGetAttr
	Export    string // RefImport
}

func Literal(v any) *RefExpr {
	return &RefExpr{Kind: RefLiteral, Value: v}
}

func Ref(target string) *RefExpr {
	return &RefExpr{Kind: RefByID, Target: target}
}

func GetAttr(target, attribute string) *RefExpr {
	return &RefExpr{Kind: RefGetAttr, Target: target, Attribute: attribute}
}

func Import(export string) *RefExpr {
	return &RefExpr{Kind: RefImport, Export: export}
}

// Referent returns the logical id this expression depends on, or "" if it
// introduces no graph edge.
func (e *RefExpr) Referent() string {
	switch e.Kind {
	case RefByID, RefGetAttr:
		return e.Target
	}
	return ""
}

func (e *RefExpr) String() string {
	switch e.Kind {
	case RefByID:
		return fmt.Sprintf("!Ref %s", e.Target)
	case RefGetAttr:
		return fmt.Sprintf("!GetAtt %s.%s", e.Target, e.Attribute)
	case RefImport:
		return fmt.Sprintf("!ImportValue %s", e.Export)
	}
	return fmt.Sprintf("%v", e.Value)
}

// MarshalJSON renders references in their template form so hashes and plan
// output stay deterministic.
func (e *RefExpr) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case RefByID:
		return json.Marshal(map[string]string{"!Ref": e.Target})
	case RefGetAttr:
		return json.Marshal(map[string]string{"!GetAtt": e.Target + "." + e.Attribute})
	case RefImport:
		return json.Marshal(map[string]string{"!ImportValue": e.Export})
	}
	return json.Marshal(e.Value)
}

// CollectRefs walks a property value and returns every reference expression
// found in it, including those nested in maps and lists.
func CollectRefs(v any) []*RefExpr {
	var refs []*RefExpr
	switch val := v.(type) {
	case *RefExpr:
		if val.Kind != RefLiteral {
			refs = append(refs, val)
		}
	case map[string]any:
		for _, v := range val {
			refs = append(refs, CollectRefs(v)...)
		}
	case []any:
		for _, v := range val {
			refs = append(refs, CollectRefs(v)...)
		}
	}
	return refs
}
