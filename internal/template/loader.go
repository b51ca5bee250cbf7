// Package template loads stack templates from YAML. The custom tags !Ref,
// !GetAtt and !ImportValue decode into reference expressions; everything else
// decodes into plain Go values.
package template

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stackr-io/stackr/internal/ir"
)

type document struct {
	Stack     string                   `yaml:"stack"`
	Resources map[string]*resourceNode `yaml:"resources"`
	Outputs   yaml.Node                `yaml:"outputs"`
	Exports   yaml.Node                `yaml:"exports"`
}

type resourceNode struct {
	Kind       string    `yaml:"kind"`
	Provider   string    `yaml:"provider"`
	DependsOn  []string  `yaml:"dependsOn"`
	Properties yaml.Node `yaml:"properties"`
}

// Load reads and parses the template at path.
func Load(path string) (*ir.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	return Parse(data)
}

// Parse decodes template bytes into a configuration. Resources are returned
// sorted by logical id; execution order comes from the dependency graph, not
// from declaration order.
func Parse(data []byte) (*ir.Config, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if doc.Stack == "" {
		return nil, fmt.Errorf("template is missing the stack name")
	}
	if len(doc.Resources) == 0 {
		return nil, fmt.Errorf("template %s declares no resources", doc.Stack)
	}

	cfg := &ir.Config{Stack: doc.Stack}

	names := make([]string, 0, len(doc.Resources))
	for name := range doc.Resources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rn := doc.Resources[name]
		if rn == nil || rn.Kind == "" {
			return nil, fmt.Errorf("resource %s is missing a kind", name)
		}

		props, err := decodeValue(&rn.Properties)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", name, err)
		}
		bag, _ := props.(map[string]any)

		provider := rn.Provider
		if provider == "" {
			provider = providerForKind(rn.Kind)
		}

		cfg.Resources = append(cfg.Resources, &ir.Resource{
			Name:       name,
			Kind:       rn.Kind,
			Provider:   provider,
			DependsOn:  rn.DependsOn,
			Properties: bag,
			Status:     ir.StatusPending,
		})
	}

	outputs, err := decodeStringMap(&doc.Outputs)
	if err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	cfg.Outputs = outputs

	exports, err := decodeStringMap(&doc.Exports)
	if err != nil {
		return nil, fmt.Errorf("exports: %w", err)
	}
	cfg.Exports = exports

	return cfg, nil
}

// providerForKind infers a provider name from the kind's naming convention
// when the template does not set one explicitly.
func providerForKind(kind string) string {
	if i := strings.Index(kind, ":"); i > 0 {
		return kind[:i]
	}
	if i := strings.Index(kind, "_"); i > 0 {
		return kind[:i]
	}
	return kind
}

// decodeValue converts a YAML node into plain values, turning the custom
// reference tags into expressions as it goes.
func decodeValue(n *yaml.Node) (any, error) {
	if n == nil || n.Kind == 0 {
		return nil, nil
	}

	switch n.Tag {
	case "!Ref":
		if n.Kind != yaml.ScalarNode || n.Value == "" {
			return nil, fmt.Errorf("!Ref expects a logical id")
		}
		return ir.Ref(n.Value), nil

	case "!GetAtt":
		target, attr, err := splitGetAtt(n)
		if err != nil {
			return nil, err
		}
		return ir.GetAttr(target, attr), nil

	case "!ImportValue":
		if n.Kind != yaml.ScalarNode || n.Value == "" {
			return nil, fmt.Errorf("!ImportValue expects an export name")
		}
		return ir.Import(n.Value), nil
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return decodeValue(n.Content[0])

	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			val, err := decodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[key] = val
		}
		return out, nil

	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			val, err := decodeValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil

	case yaml.AliasNode:
		return decodeValue(n.Alias)

	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	}
}

// splitGetAtt accepts both the scalar form "Resource.Attribute" and the
// two-element sequence form [Resource, Attribute].
func splitGetAtt(n *yaml.Node) (target, attr string, err error) {
	switch n.Kind {
	case yaml.ScalarNode:
		i := strings.Index(n.Value, ".")
		if i <= 0 || i == len(n.Value)-1 {
			return "", "", fmt.Errorf("!GetAtt expects Resource.Attribute, got %q", n.Value)
		}
		return n.Value[:i], n.Value[i+1:], nil
	case yaml.SequenceNode:
		if len(n.Content) != 2 {
			return "", "", fmt.Errorf("!GetAtt sequence form expects [Resource, Attribute]")
		}
		return n.Content[0].Value, n.Content[1].Value, nil
	}
	return "", "", fmt.Errorf("!GetAtt expects a scalar or a two-element sequence")
}

// decodeStringMap decodes a mapping node whose values may contain references.
func decodeStringMap(n *yaml.Node) (map[string]any, error) {
	v, err := decodeValue(n)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a mapping")
	}
	return m, nil
}
