// Package matcher implements the per-event traversal of a compiled
// processing tree: filter gating, in-order rule evaluation, variable
// extraction, and action materialization. The driver is stateless beyond
// the immutable tree and is safe for concurrent use from any number of
// goroutines.
package matcher

import (
	"fmt"
	"strings"

	"github.com/WuerthPhoenix/tornado-match/internal/accessor"
	"github.com/WuerthPhoenix/tornado-match/internal/ruleconf"
	"github.com/WuerthPhoenix/tornado-match/internal/tree"
	"github.com/WuerthPhoenix/tornado-match/internal/value"
)

// RuleStatus is the per-rule outcome of one match cycle.
type RuleStatus int

const (
	StatusMatched RuleStatus = iota
	StatusNotMatched
	StatusPartiallyMatched
	StatusNotProcessed
)

func (s RuleStatus) String() string {
	switch s {
	case StatusMatched:
		return "matched"
	case StatusNotMatched:
		return "not_matched"
	case StatusPartiallyMatched:
		return "partially_matched"
	case StatusNotProcessed:
		return "not_processed"
	default:
		return "unknown"
	}
}

// FilterOutcome is the recorded result of one filter node's gate.
type FilterOutcome int

const (
	FilterMatched FilterOutcome = iota
	FilterNotMatched
	FilterNotProcessed
)

func (o FilterOutcome) String() string {
	switch o {
	case FilterMatched:
		return "matched"
	case FilterNotMatched:
		return "not_matched"
	case FilterNotProcessed:
		return "not_processed"
	default:
		return "unknown"
	}
}

// ResolvedAction is an action with its payload fully interpolated.
type ResolvedAction struct {
	ID      string
	Payload value.Value
}

// RuleResult reports one rule's evaluation: status, materialized actions,
// extracted variables, and a diagnostic message when the rule did not
// fully match.
type RuleResult struct {
	RuleName      string
	Status        RuleStatus
	Actions       []ResolvedAction
	Message       string
	ExtractedVars map[string]value.Value
}

// NodeResult is one node of the per-event result tree, mirroring the
// processing tree's shape. Children preserve declared order; Child looks
// one up by name.
type NodeResult struct {
	Name     string
	Path     string
	Kind     ruleconf.NodeKind
	Outcome  FilterOutcome // filter nodes only
	Message  string        // filter evaluation diagnostic
	Children []*NodeResult
	Rules    []*RuleResult
}

// Child returns the named child result, or nil.
func (r *NodeResult) Child(name string) *NodeResult {
	for _, c := range r.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// At walks the result tree by node names (excluding the root's own name).
func (r *NodeResult) At(path ...string) *NodeResult {
	cur := r
	for _, name := range path {
		cur = cur.Child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Rule returns the named rule result within this node, or nil.
func (r *NodeResult) Rule(name string) *RuleResult {
	for _, rr := range r.Rules {
		if rr.RuleName == name {
			return rr
		}
	}
	return nil
}

// Walk visits this node and every descendant in declared order.
func (r *NodeResult) Walk(fn func(*NodeResult)) {
	fn(r)
	for _, c := range r.Children {
		c.Walk(fn)
	}
}

// ProcessedEvent is the matcher's output for one event.
type ProcessedEvent struct {
	Event  value.Event
	Result *NodeResult
}

// Driver matches events against one compiled tree. The tree is shared
// read-only; each event gets a private variable scope.
type Driver struct {
	tree *tree.Compiled
}

// New builds a Driver over a compiled tree.
func New(t *tree.Compiled) *Driver {
	return &Driver{tree: t}
}

// Match runs one event through the tree and aggregates the result.
// Matching never fails: every per-rule error is converted into that
// rule's diagnostic status.
func (d *Driver) Match(ev value.Event) ProcessedEvent {
	return ProcessedEvent{Event: ev, Result: d.matchNode(d.tree.Root, ev)}
}

func (d *Driver) matchNode(n *tree.Node, ev value.Event) *NodeResult {
	if n.Kind == ruleconf.NodeRuleSet {
		return d.matchRuleSet(n, ev)
	}

	res := &NodeResult{Name: n.Name, Path: n.PathString(), Kind: n.Kind}
	if !n.Active {
		res.Outcome = FilterNotProcessed
		for _, child := range n.Children {
			res.Children = append(res.Children, notProcessedResult(child))
		}
		return res
	}

	// Filters evaluate with an empty variable scope.
	pass, err := n.Filter.Eval(ev, accessor.NewScope())
	if err != nil {
		res.Outcome = FilterNotMatched
		res.Message = err.Error()
	} else if pass {
		res.Outcome = FilterMatched
	} else {
		res.Outcome = FilterNotMatched
	}

	for _, child := range n.Children {
		if res.Outcome == FilterMatched {
			res.Children = append(res.Children, d.matchNode(child, ev))
		} else {
			res.Children = append(res.Children, notProcessedResult(child))
		}
	}
	return res
}

// notProcessedResult marks an entire unvisited subtree NotProcessed, so
// the result shape is identical whether or not a filter passed.
func notProcessedResult(n *tree.Node) *NodeResult {
	res := &NodeResult{Name: n.Name, Path: n.PathString(), Kind: n.Kind, Outcome: FilterNotProcessed}
	for _, child := range n.Children {
		res.Children = append(res.Children, notProcessedResult(child))
	}
	for _, rule := range n.Rules {
		res.Rules = append(res.Rules, &RuleResult{RuleName: rule.Name, Status: StatusNotProcessed})
	}
	return res
}

func (d *Driver) matchRuleSet(n *tree.Node, ev value.Event) *NodeResult {
	res := &NodeResult{Name: n.Name, Path: n.PathString(), Kind: n.Kind, Outcome: FilterMatched}
	scope := accessor.NewScope()
	stopped := false

	for _, rule := range n.Rules {
		if stopped || !rule.Active {
			res.Rules = append(res.Rules, &RuleResult{RuleName: rule.Name, Status: StatusNotProcessed})
			continue
		}
		res.Rules = append(res.Rules, d.evalRule(rule, ev, scope))
		last := res.Rules[len(res.Rules)-1]
		if last.Status == StatusMatched && !rule.Continue {
			stopped = true
		}
	}
	return res
}

func (d *Driver) evalRule(rule *tree.Rule, ev value.Event, scope *accessor.Scope) *RuleResult {
	ruleScope := scope.NextRuleScope()

	pass, err := rule.Where.Eval(ev, ruleScope)
	if err != nil {
		return &RuleResult{RuleName: rule.Name, Status: StatusNotMatched, Message: err.Error()}
	}
	if !pass {
		return &RuleResult{RuleName: rule.Name, Status: StatusNotMatched}
	}

	// Run every extractor even after a failure so the result carries a
	// diagnostic per unresolved variable, but expose no partial binding.
	extracted := make(map[string]value.Value, len(rule.With))
	var failures []string
	for _, ne := range rule.With {
		v, err := ne.Extractor.Extract(ev, ruleScope)
		if err != nil {
			failures = append(failures, fmt.Sprintf("variable %q: %v", ne.Name, err))
			continue
		}
		if len(failures) == 0 {
			ruleScope.Bind(ne.Name, v)
			extracted[ne.Name] = v
		}
	}
	if len(failures) > 0 {
		return &RuleResult{
			RuleName: rule.Name,
			Status:   StatusPartiallyMatched,
			Message:  strings.Join(failures, "; "),
		}
	}

	actions := make([]ResolvedAction, 0, len(rule.Actions))
	for _, a := range rule.Actions {
		payload, err := a.Materialize(ev, ruleScope)
		if err != nil {
			return &RuleResult{
				RuleName: rule.Name,
				Status:   StatusPartiallyMatched,
				Message:  fmt.Sprintf("action %q: %v", a.ID, err),
			}
		}
		actions = append(actions, ResolvedAction{ID: a.ID, Payload: payload})
	}

	ruleScope.Commit(rule.Name)
	return &RuleResult{
		RuleName:      rule.Name,
		Status:        StatusMatched,
		Actions:       actions,
		ExtractedVars: extracted,
	}
}
