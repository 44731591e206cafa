package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvVar is a single KEY=VALUE pair.
type EnvVar struct {
	Key   string
	Value string
}

// EnvVars is an ordered list of key/value pairs. In YAML it is accepted
// either as a mapping or as a list of "KEY=VALUE" strings and is always
// written back as a mapping. In JSON it is an object in stored order.
type EnvVars []EnvVar

// Get returns the value for key.
func (e EnvVars) Get(key string) (string, bool) {
	for _, v := range e {
		if v.Key == key {
			return v.Value, true
		}
	}
	return "", false
}

// Map returns the pairs as a map. Later duplicates win.
func (e EnvVars) Map() map[string]string {
	m := make(map[string]string, len(e))
	for _, v := range e {
		m[v.Key] = v.Value
	}
	return m
}

// problems reports empty and duplicate keys, prefixed by field.
func (e EnvVars) problems(field string) []string {
	var out []string
	seen := make(map[string]bool, len(e))
	for i, v := range e {
		if strings.TrimSpace(v.Key) == "" {
			out = append(out, fmt.Sprintf("%s: key at position %d is empty", field, i+1))
			continue
		}
		if seen[v.Key] {
			out = append(out, fmt.Sprintf("%s: duplicate key %q", field, v.Key))
		}
		seen[v.Key] = true
	}
	return out
}

func (e *EnvVars) UnmarshalYAML(node *yaml.Node) error {
	var out EnvVars

	switch node.Kind {
	case yaml.MappingNode:
		pairs, err := mappingPairs(node)
		if err != nil {
			return err
		}
		out = append(out, pairs...)
	case yaml.SequenceNode:
		for _, item := range node.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				key, value, ok := strings.Cut(item.Value, "=")
				if !ok {
					return fmt.Errorf("line %d: entry %q is not in KEY=VALUE form", item.Line, item.Value)
				}
				out = append(out, EnvVar{Key: strings.TrimSpace(key), Value: value})
			case yaml.MappingNode:
				pairs, err := mappingPairs(item)
				if err != nil {
					return err
				}
				out = append(out, pairs...)
			default:
				return fmt.Errorf("line %d: unsupported entry", item.Line)
			}
		}
	case yaml.ScalarNode:
		if node.Tag != "!!null" {
			return fmt.Errorf("line %d: expected a mapping or a list, got %q", node.Line, node.Value)
		}
	default:
		return fmt.Errorf("line %d: expected a mapping or a list", node.Line)
	}

	*e = out
	return nil
}

func mappingPairs(node *yaml.Node) ([]EnvVar, error) {
	pairs := make([]EnvVar, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: value for %q must be a scalar", v.Line, k.Value)
		}
		value := v.Value
		if v.Tag == "!!null" {
			value = ""
		}
		pairs = append(pairs, EnvVar{Key: k.Value, Value: value})
	}
	return pairs, nil
}

func (e EnvVars) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, v := range e {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Value},
		)
	}
	return node, nil
}

func (e EnvVars) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range e {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(v.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
