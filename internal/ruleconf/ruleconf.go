// Package ruleconf defines the language-neutral configuration DTOs for
// the processing tree: Operator, Extractor, Rule, ActionTemplate and the
// Filter/RuleSet tree nodes. Values decode identically from JSON or YAML
// documents; field names and type tags are part of the stable external
// contract.
package ruleconf

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/WuerthPhoenix/tornado-match/internal/value"
)

// Operator is the tagged-variant boolean expression config. Type selects
// the variant; the remaining fields are used according to Type (see
// operator.Compile for the authoritative dispatch).
type Operator struct {
	Type     string       `yaml:"type" json:"type"`
	Operands []*Operator  `yaml:"operands,omitempty" json:"operands,omitempty"` // AND, OR
	Operand  *Operator    `yaml:"operand,omitempty" json:"operand,omitempty"`   // NOT
	First    *value.Value `yaml:"first,omitempty" json:"first,omitempty"`
	Second   *value.Value `yaml:"second,omitempty" json:"second,omitempty"`
	Regex    string       `yaml:"regex,omitempty" json:"regex,omitempty"`   // regex pattern
	Target   *value.Value `yaml:"target,omitempty" json:"target,omitempty"` // regex target
}

// Extractor regex-mode type tags (stable wire contract).
const (
	RegexTypeStd         = "Regex"
	RegexTypeNamedGroups = "RegexNamedGroups"
	RegexTypeKey         = "KeyRegex"
)

// ExtractorRegex is the tagged regex configuration of an Extractor. An
// absent Type with Match set is read as the plain "Regex" mode.
type ExtractorRegex struct {
	Type           string `yaml:"type,omitempty" json:"type,omitempty"`
	Match          string `yaml:"match,omitempty" json:"match,omitempty"`
	GroupMatchIdx  *int   `yaml:"group_match_idx,omitempty" json:"group_match_idx,omitempty"`
	NamedMatch     string `yaml:"named_match,omitempty" json:"named_match,omitempty"`
	SingleKeyMatch string `yaml:"single_key_match,omitempty" json:"single_key_match,omitempty"`
	AllMatches     bool   `yaml:"all_matches,omitempty" json:"all_matches,omitempty"`
}

// Extractor is one WITH entry: a source expression, a regex mode, and an
// ordered post-modifier pipeline.
type Extractor struct {
	From          string         `yaml:"from" json:"from"`
	Regex         ExtractorRegex `yaml:"regex" json:"regex"`
	ModifiersPost []Modifier     `yaml:"modifiers_post,omitempty" json:"modifiers_post,omitempty"`
}

// Modifier is one stage of an Extractor's modifiers_post pipeline. Type is
// one of Lowercase, Trim, ToNumber, ReplaceAll, Map (matched
// case-insensitively).
type Modifier struct {
	Type         string            `yaml:"type" json:"type"`
	Find         string            `yaml:"find,omitempty" json:"find,omitempty"`
	Replace      string            `yaml:"replace,omitempty" json:"replace,omitempty"`
	IsRegex      bool              `yaml:"is_regex,omitempty" json:"is_regex,omitempty"`
	Mapping      map[string]string `yaml:"mapping,omitempty" json:"mapping,omitempty"`
	DefaultValue *string           `yaml:"default_value,omitempty" json:"default_value,omitempty"`
}

// ActionTemplate is the {id, payload} record emitted by a matched rule,
// with `${...}` placeholders still unresolved in its payload strings.
type ActionTemplate struct {
	ID      string      `yaml:"id" json:"id"`
	Payload value.Value `yaml:"payload" json:"payload"`
}

// NamedExtractor pairs a variable name with its Extractor config.
type NamedExtractor struct {
	Name      string
	Extractor Extractor
}

// ExtractorMap is the WITH clause: an ordered mapping from variable name
// to Extractor. Declared order is preserved through JSON and YAML decoding
// because extractor evaluation order is observable.
type ExtractorMap []NamedExtractor

// UnmarshalJSON decodes a JSON object into an ExtractorMap preserving the
// document's key order, which encoding/json's map decoding would lose.
func (m *ExtractorMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("ruleconf: WITH must be an object")
	}
	out := ExtractorMap{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("ruleconf: WITH key must be a string")
		}
		var ex Extractor
		if err := dec.Decode(&ex); err != nil {
			return fmt.Errorf("ruleconf: WITH entry %q: %w", key, err)
		}
		out = append(out, NamedExtractor{Name: key, Extractor: ex})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

// MarshalJSON renders the map back as a JSON object in declared order.
func (m ExtractorMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ne := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(ne.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(ne.Extractor)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalYAML decodes a YAML mapping into an ExtractorMap preserving the
// document's key order.
func (m *ExtractorMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("ruleconf: WITH must be a mapping")
	}
	out := ExtractorMap{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var ex Extractor
		if err := node.Content[i+1].Decode(&ex); err != nil {
			return fmt.Errorf("ruleconf: WITH entry %q: %w", node.Content[i].Value, err)
		}
		out = append(out, NamedExtractor{Name: node.Content[i].Value, Extractor: ex})
	}
	*m = out
	return nil
}

// Constraint bundles a Rule's WHERE operator and WITH extractors.
type Constraint struct {
	Where *Operator    `yaml:"WHERE,omitempty" json:"WHERE,omitempty"`
	With  ExtractorMap `yaml:"WITH,omitempty" json:"WITH,omitempty"`
}

// Rule is the conditional action generator config. Continue and Active
// default to true when omitted from the document.
type Rule struct {
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Continue    bool             `yaml:"continue" json:"continue"`
	Active      bool             `yaml:"active" json:"active"`
	Constraint  Constraint       `yaml:"constraint" json:"constraint"`
	Actions     []ActionTemplate `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// ruleDoc mirrors Rule with optional booleans so that omitted continue /
// active fields default to true instead of Go's zero value.
type ruleDoc struct {
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description" json:"description"`
	Continue    *bool            `yaml:"continue" json:"continue"`
	Active      *bool            `yaml:"active" json:"active"`
	Constraint  Constraint       `yaml:"constraint" json:"constraint"`
	Actions     []ActionTemplate `yaml:"actions" json:"actions"`
}

func (d ruleDoc) toRule() Rule {
	r := Rule{
		Name:        d.Name,
		Description: d.Description,
		Continue:    true,
		Active:      true,
		Constraint:  d.Constraint,
		Actions:     d.Actions,
	}
	if d.Continue != nil {
		r.Continue = *d.Continue
	}
	if d.Active != nil {
		r.Active = *d.Active
	}
	return r
}

// UnmarshalJSON implements json.Unmarshaler with the documented defaults.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var d ruleDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	*r = d.toRule()
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler with the documented defaults.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	var d ruleDoc
	if err := node.Decode(&d); err != nil {
		return err
	}
	*r = d.toRule()
	return nil
}

// NodeKind tags a processing tree node's config shape.
type NodeKind int

const (
	NodeFilter NodeKind = iota
	NodeRuleSet
)

// Node is a processing tree node config: either a Filter (with an optional
// gating operator and child nodes) or a RuleSet (a leaf with ordered
// rules). Kind discriminates which fields are meaningful, matching the
// directory convention (a directory with sub-directories is a Filter; a
// directory whose children are rule files is a RuleSet).
type Node struct {
	Kind        NodeKind
	Name        string
	Description string
	Active      bool
	Filter      *Operator // nil means implicit (always true)
	Children    []*Node   // Filter only
	Rules       []*Rule   // RuleSet only
}
