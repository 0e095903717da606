package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/WuerthPhoenix/tornado-match/internal/ruleconf"
)

// LoadTree loads a processing tree from either a single document or a
// directory hierarchy, auto-detecting the type. The returned root node is
// always named "root", regardless of the file or directory name.
func LoadTree(path string) (*ruleconf.Node, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tree path: %w", err)
	}
	var node *ruleconf.Node
	if info.IsDir() {
		node, err = loadTreeDir(path)
	} else {
		node, err = loadTreeFile(path)
	}
	if err != nil {
		return nil, err
	}
	node.Name = "root"
	return node, nil
}

// nodeDoc is the single-document tree shape: nested filters and rule
// sets in one JSON or YAML file.
type nodeDoc struct {
	Type        string             `yaml:"type" json:"type"` // filter | ruleset; inferred when empty
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description" json:"description"`
	Active      *bool              `yaml:"active" json:"active"`
	Filter      *ruleconf.Operator `yaml:"filter" json:"filter"`
	Nodes       []*nodeDoc         `yaml:"nodes" json:"nodes"`
	Rules       []*ruleconf.Rule   `yaml:"rules" json:"rules"`
}

func (d *nodeDoc) toNode(path string) (*ruleconf.Node, error) {
	active := true
	if d.Active != nil {
		active = *d.Active
	}
	kind := d.Type
	if kind == "" {
		if len(d.Rules) > 0 {
			kind = "ruleset"
		} else {
			kind = "filter"
		}
	}
	switch kind {
	case "filter":
		if len(d.Rules) > 0 {
			return nil, fmt.Errorf("%s: filter node %q cannot carry rules", path, d.Name)
		}
		n := &ruleconf.Node{
			Kind:        ruleconf.NodeFilter,
			Name:        d.Name,
			Description: d.Description,
			Active:      active,
			Filter:      d.Filter,
		}
		for _, child := range d.Nodes {
			c, err := child.toNode(path)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, c)
		}
		return n, nil
	case "ruleset":
		if len(d.Nodes) > 0 {
			return nil, fmt.Errorf("%s: rule set %q cannot have child nodes", path, d.Name)
		}
		return &ruleconf.Node{
			Kind:        ruleconf.NodeRuleSet,
			Name:        d.Name,
			Description: d.Description,
			Active:      active,
			Rules:       d.Rules,
		}, nil
	default:
		return nil, fmt.Errorf("%s: unknown node type %q", path, kind)
	}
}

func loadTreeFile(path string) (*ruleconf.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree file: %w", err)
	}
	var doc nodeDoc
	if err := decodeByExt(path, data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc.toNode(path)
}

// ruleFilePattern is the NNNN_RULENAME convention: the numeric prefix
// determines evaluation order, the remainder is the rule name.
var ruleFilePattern = regexp.MustCompile(`^([0-9]+)_([A-Za-z0-9_]+)$`)

// filterDoc is the on-disk descriptor for a filter directory.
type filterDoc struct {
	Description string             `yaml:"description" json:"description"`
	Active      *bool              `yaml:"active" json:"active"`
	Filter      *ruleconf.Operator `yaml:"filter" json:"filter"`
}

// loadTreeDir decodes one directory into a node: a directory with
// subdirectories is a Filter (its optional descriptor in filter.json or
// <dirname>.json), a directory holding only rule files is a RuleSet.
func loadTreeDir(dir string) (*ruleconf.Node, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree directory: %w", err)
	}

	name := filepath.Base(dir)
	var subdirs []os.DirEntry
	var files []os.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, e)
		} else {
			files = append(files, e)
		}
	}

	if len(subdirs) == 0 && len(files) == 0 {
		return nil, fmt.Errorf("%s: empty tree directory", dir)
	}
	if len(subdirs) > 0 {
		return loadFilterDir(dir, name, subdirs, files)
	}
	return loadRuleSetDir(dir, name, files)
}

func loadFilterDir(dir, name string, subdirs, files []os.DirEntry) (*ruleconf.Node, error) {
	n := &ruleconf.Node{Kind: ruleconf.NodeFilter, Name: name, Active: true}

	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			// Unknown extensions are ignored.
			continue
		}
		base := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
		if base != "filter" && base != name {
			return nil, fmt.Errorf("%s: unexpected file %q in filter directory", dir, f.Name())
		}
		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name(), err)
		}
		var doc filterDoc
		if err := decodeByExt(f.Name(), data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Join(dir, f.Name()), err)
		}
		n.Description = doc.Description
		if doc.Active != nil {
			n.Active = *doc.Active
		}
		n.Filter = doc.Filter
	}

	// os.ReadDir returns entries sorted by name, which fixes sibling order.
	for _, d := range subdirs {
		child, err := loadTreeDir(filepath.Join(dir, d.Name()))
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

func loadRuleSetDir(dir, name string, files []os.DirEntry) (*ruleconf.Node, error) {
	type orderedRule struct {
		order    int
		filename string
		rule     *ruleconf.Rule
	}
	var rules []orderedRule

	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		base := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
		m := ruleFilePattern.FindStringSubmatch(base)
		if m == nil {
			return nil, fmt.Errorf("%s: rule file %q does not follow the NNNN_RULENAME convention", dir, f.Name())
		}
		order := 0
		for _, c := range m[1] {
			order = order*10 + int(c-'0')
		}
		ruleName := m[2]

		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name(), err)
		}
		var rule ruleconf.Rule
		if err := decodeByExt(f.Name(), data, &rule); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Join(dir, f.Name()), err)
		}
		if rule.Name == "" {
			rule.Name = ruleName
		} else if rule.Name != ruleName {
			return nil, fmt.Errorf("%s: rule file %q declares conflicting name %q", dir, f.Name(), rule.Name)
		}
		rules = append(rules, orderedRule{order: order, filename: f.Name(), rule: &rule})
	}

	if len(rules) == 0 {
		return nil, fmt.Errorf("%s: rule set directory contains no rule files", dir)
	}

	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].order != rules[j].order {
			return rules[i].order < rules[j].order
		}
		return rules[i].filename < rules[j].filename
	})

	n := &ruleconf.Node{Kind: ruleconf.NodeRuleSet, Name: name, Active: true}
	for _, r := range rules {
		n.Rules = append(n.Rules, r.rule)
	}
	return n, nil
}

func decodeByExt(name string, data []byte, out any) error {
	if strings.ToLower(filepath.Ext(name)) == ".json" {
		return json.Unmarshal(data, out)
	}
	return yaml.Unmarshal(data, out)
}
