// Package tree compiles a declarative processing-tree configuration into
// an immutable, shareable structure: every operator, extractor, regex and
// action template pre-parsed, every name validated. Compilation is pure
// and fails atomically on the first configuration error.
package tree

import (
	"strings"

	"github.com/WuerthPhoenix/tornado-match/internal/extractor"
	"github.com/WuerthPhoenix/tornado-match/internal/operator"
	"github.com/WuerthPhoenix/tornado-match/internal/ruleconf"
)

// Compiled is the immutable compiled processing tree. It is shared
// read-only across any number of concurrent matching goroutines.
type Compiled struct {
	Root *Node
}

// Node is a compiled tree node: a Filter gating its children, or a
// RuleSet leaf holding ordered compiled rules.
type Node struct {
	Kind        ruleconf.NodeKind
	Name        string
	Path        []string // node names from root, inclusive
	Description string
	Active      bool
	Filter      *operator.Compiled // nil means implicit (always true)
	Children    []*Node
	Rules       []*Rule
}

// PathString renders the node path as a dotted string.
func (n *Node) PathString() string { return strings.Join(n.Path, ".") }

// Rule is a compiled rule: WHERE operator, ordered WITH extractors, and
// pre-parsed action templates.
type Rule struct {
	Name        string
	Description string
	Continue    bool
	Active      bool
	Where       *operator.Compiled // nil means always true
	With        []NamedExtractor
	Actions     []*Action
}

// NamedExtractor pairs a variable name with its compiled extractor.
type NamedExtractor struct {
	Name      string
	Extractor *extractor.Compiled
}

// Compile validates and compiles a configuration tree. The root must be a
// Filter named "root"; a bare RuleSet root is accepted and wrapped in an
// implicit root filter.
func Compile(root *ruleconf.Node) (*Compiled, error) {
	if root == nil {
		return nil, ruleconf.ErrRequired("root", "processing tree")
	}
	if root.Kind == ruleconf.NodeRuleSet {
		root = &ruleconf.Node{
			Kind:     ruleconf.NodeFilter,
			Name:     "root",
			Active:   true,
			Children: []*ruleconf.Node{root},
		}
	}
	if root.Name != "root" {
		return nil, ruleconf.ErrAt(root.Name, "root node must be named \"root\"")
	}
	node, err := compileNode(root, nil)
	if err != nil {
		return nil, err
	}
	return &Compiled{Root: node}, nil
}

func compileNode(cfg *ruleconf.Node, parentPath []string) (*Node, error) {
	if !ruleconf.ValidIdentifier(cfg.Name) {
		return nil, ruleconf.ErrInvalidIdentifier(strings.Join(parentPath, "."), cfg.Name)
	}
	path := make([]string, 0, len(parentPath)+1)
	path = append(path, parentPath...)
	path = append(path, cfg.Name)
	dotted := strings.Join(path, ".")

	n := &Node{
		Kind:        cfg.Kind,
		Name:        cfg.Name,
		Path:        path,
		Description: cfg.Description,
		Active:      cfg.Active,
	}

	switch cfg.Kind {
	case ruleconf.NodeFilter:
		if len(cfg.Rules) > 0 {
			return nil, ruleconf.ErrAt(dotted, "a filter node cannot carry rules")
		}
		op, err := operator.Compile(cfg.Filter)
		if err != nil {
			return nil, ruleconf.ErrAt(dotted, "invalid filter: %v", err)
		}
		n.Filter = op
		seen := make(map[string]bool, len(cfg.Children))
		for _, child := range cfg.Children {
			if seen[child.Name] {
				return nil, ruleconf.ErrDuplicateName(dotted, child.Name)
			}
			seen[child.Name] = true
			compiled, err := compileNode(child, path)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, compiled)
		}
	case ruleconf.NodeRuleSet:
		if len(cfg.Children) > 0 {
			return nil, ruleconf.ErrAt(dotted, "a rule set cannot have child nodes")
		}
		seen := make(map[string]bool, len(cfg.Rules))
		for _, rule := range cfg.Rules {
			if seen[rule.Name] {
				return nil, ruleconf.ErrDuplicateName(dotted, rule.Name)
			}
			seen[rule.Name] = true
			compiled, err := compileRule(rule, dotted)
			if err != nil {
				return nil, err
			}
			n.Rules = append(n.Rules, compiled)
		}
	default:
		return nil, ruleconf.ErrAt(dotted, "unknown node kind %d", cfg.Kind)
	}
	return n, nil
}

func compileRule(cfg *ruleconf.Rule, parentPath string) (*Rule, error) {
	if !ruleconf.ValidIdentifier(cfg.Name) {
		return nil, ruleconf.ErrInvalidIdentifier(parentPath, cfg.Name)
	}
	rulePath := parentPath + "." + cfg.Name

	where, err := operator.Compile(cfg.Constraint.Where)
	if err != nil {
		return nil, ruleconf.ErrAt(rulePath, "invalid WHERE: %v", err)
	}

	r := &Rule{
		Name:        cfg.Name,
		Description: cfg.Description,
		Continue:    cfg.Continue,
		Active:      cfg.Active,
		Where:       where,
	}

	seenVars := make(map[string]bool, len(cfg.Constraint.With))
	for _, ne := range cfg.Constraint.With {
		if !ruleconf.ValidIdentifier(ne.Name) {
			return nil, ruleconf.ErrInvalidIdentifier(rulePath, ne.Name)
		}
		if seenVars[ne.Name] {
			return nil, ruleconf.ErrDuplicateName(rulePath, ne.Name)
		}
		seenVars[ne.Name] = true
		ex, err := extractor.Compile(ne.Extractor)
		if err != nil {
			return nil, ruleconf.ErrAt(rulePath, "invalid WITH entry %q: %v", ne.Name, err)
		}
		r.With = append(r.With, NamedExtractor{Name: ne.Name, Extractor: ex})
	}

	for i, at := range cfg.Actions {
		action, err := compileAction(at)
		if err != nil {
			return nil, ruleconf.ErrAt(rulePath, "invalid action[%d] %q: %v", i, at.ID, err)
		}
		r.Actions = append(r.Actions, action)
	}
	return r, nil
}
