package engine

import (
	"encoding/json"

	"github.com/stackr-io/stackr/internal/ir"
)

// lookupFunc finds the state record for a logical id. The planner passes a
// snapshot lookup; the executor passes the live store so sibling entries see
// outputs the moment their prerequisites complete.
type lookupFunc func(name string) (*ir.StateRecord, bool)

// resolveValue replaces reference expressions with values from the state
// store. References whose referent has no record yet are left in place and
// reported via the second return: an unresolved reference is a dependency
// ordering constraint, not an error.
func resolveValue(v any, lookup lookupFunc) (any, bool) {
	resolved := true
	switch val := v.(type) {
	case *ir.RefExpr:
		switch val.Kind {
		case ir.RefLiteral:
			return val.Value, true
		case ir.RefByID:
			if rec, ok := lookup(val.Target); ok && rec.ID != "" {
				return rec.ID, true
			}
			return val, false
		case ir.RefGetAttr:
			if rec, ok := lookup(val.Target); ok {
				if out, ok := rec.Outputs[val.Attribute]; ok {
					return out, true
				}
				if prop, ok := rec.Properties[val.Attribute]; ok {
					return prop, true
				}
			}
			return val, false
		default:
			return val, false
		}
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			rv, ok := resolveValue(v, lookup)
			out[k] = rv
			resolved = resolved && ok
		}
		return out, resolved
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			rv, ok := resolveValue(v, lookup)
			out[i] = rv
			resolved = resolved && ok
		}
		return out, resolved
	default:
		return v, true
	}
}

// resolveProperties resolves a whole property bag.
func resolveProperties(props map[string]any, lookup lookupFunc) (map[string]any, bool) {
	if props == nil {
		return nil, true
	}
	out, ok := resolveValue(props, lookup)
	return out.(map[string]any), ok
}

// substituteImports replaces !ImportValue references with the supplied values,
// returning the rewritten value and any export names left unsatisfied.
func substituteImports(v any, imports map[string]any) (any, []string) {
	switch val := v.(type) {
	case *ir.RefExpr:
		if val.Kind != ir.RefImport {
			return val, nil
		}
		if imported, ok := imports[val.Export]; ok {
			return imported, nil
		}
		return val, []string{val.Export}
	case map[string]any:
		out := make(map[string]any, len(val))
		var missing []string
		for k, v := range val {
			rv, m := substituteImports(v, imports)
			out[k] = rv
			missing = append(missing, m...)
		}
		return out, missing
	case []any:
		out := make([]any, len(val))
		var missing []string
		for i, v := range val {
			rv, m := substituteImports(v, imports)
			out[i] = rv
			missing = append(missing, m...)
		}
		return out, missing
	default:
		return v, nil
	}
}

// normalize round-trips a value through JSON so structurally equal values
// compare equal regardless of their in-memory numeric or map types.
func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
