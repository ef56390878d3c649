package render

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

type field struct {
	Key   string
	Value any
}

// ordered is a YAML mapping that keeps insertion order.
type ordered []field

func (o ordered) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range o {
		var v yaml.Node
		if err := v.Encode(f.Value); err != nil {
			return nil, err
		}
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Key}, &v)
	}
	return n, nil
}

// set appends key unless value is the zero value of a common scalar or an
// empty collection.
func (o *ordered) set(key string, value any) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return
		}
	case bool:
		if !v {
			return
		}
	case int:
		if v == 0 {
			return
		}
	case []string:
		if len(v) == 0 {
			return
		}
	case ordered:
		if len(v) == 0 {
			return
		}
	}
	*o = append(*o, field{Key: key, Value: value})
}

// always appends key even for zero values.
func (o *ordered) always(key string, value any) {
	*o = append(*o, field{Key: key, Value: value})
}

func marshalYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
