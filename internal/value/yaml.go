package value

import "gopkg.in/yaml.v3"

// UnmarshalYAML implements yaml.Unmarshaler (gopkg.in/yaml.v3) for Value,
// so configuration DTOs embedding Value can be loaded from either JSON or
// YAML documents with identical semantics.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*v = FromJSON(raw)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (any, error) {
	return ToJSON(v), nil
}
