// Package operator compiles the tagged-variant boolean expression config
// into an executable tree and evaluates it against one event plus a
// variable scope. Compilation happens once per processing tree; evaluation
// is side-effect free and safe for concurrent use.
package operator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/WuerthPhoenix/tornado-match/internal/accessor"
	"github.com/WuerthPhoenix/tornado-match/internal/interpolate"
	"github.com/WuerthPhoenix/tornado-match/internal/ruleconf"
	"github.com/WuerthPhoenix/tornado-match/internal/value"
)

// Compiled is a ready-to-evaluate operator tree. A nil *Compiled is the
// implicit always-true operator used by filters without a filter clause
// and rules without a WHERE clause.
type Compiled struct {
	root node
}

// Eval evaluates the operator over (event, variables), returning the
// boolean outcome or a local OperatorError. A nil receiver is always true.
func (c *Compiled) Eval(ev value.Event, scope *accessor.Scope) (bool, error) {
	if c == nil {
		return true, nil
	}
	return c.root.eval(ev, scope)
}

type node interface {
	eval(ev value.Event, scope *accessor.Scope) (bool, error)
}

// operand is a pre-parsed ValueExpression: either a literal Value or a
// string template resolved at evaluation time.
type operand struct {
	lit  value.Value
	tmpl *interpolate.Template
}

func compileOperand(field string, v *value.Value) (operand, error) {
	if v == nil {
		return operand{}, fmt.Errorf("operator field %q is required", field)
	}
	if s, ok := v.AsString(); ok && strings.Contains(s, "${") {
		t, err := interpolate.Parse(s)
		if err != nil {
			return operand{}, err
		}
		return operand{tmpl: t}, nil
	}
	return operand{lit: *v}, nil
}

func (o operand) resolve(ev value.Event, scope *accessor.Scope) (value.Value, error) {
	if o.tmpl == nil {
		return o.lit, nil
	}
	v, err := interpolate.RenderValue(o.tmpl, ev, scope)
	if err != nil {
		return value.Null, &OperatorError{Kind: AccessorFailed, Err: err}
	}
	return v, nil
}

// Compile builds a Compiled operator tree from its configuration,
// resolving type-tag aliases and compiling every embedded accessor,
// template, and regex exactly once. A nil config compiles to the nil
// (always-true) operator.
func Compile(cfg *ruleconf.Operator) (*Compiled, error) {
	if cfg == nil {
		return nil, nil
	}
	n, err := compile(cfg)
	if err != nil {
		return nil, err
	}
	return &Compiled{root: n}, nil
}

func compile(cfg *ruleconf.Operator) (node, error) {
	switch cfg.Type {
	case "AND", "and":
		return compileConnective(cfg, true)
	case "OR", "or":
		return compileConnective(cfg, false)
	case "NOT", "not":
		if cfg.Operand == nil {
			return nil, fmt.Errorf("not operator requires an operand")
		}
		child, err := compile(cfg.Operand)
		if err != nil {
			return nil, err
		}
		return &notNode{child: child}, nil
	case "regex":
		if cfg.Regex == "" {
			return nil, fmt.Errorf("regex operator requires a pattern")
		}
		re, err := regexp.Compile(cfg.Regex)
		if err != nil {
			return nil, fmt.Errorf("regex operator: invalid pattern %q: %v", cfg.Regex, err)
		}
		target, err := compileOperand("target", cfg.Target)
		if err != nil {
			return nil, err
		}
		return &regexNode{re: re, target: target}, nil
	default:
		canon, ok := ruleconf.CanonicalOperatorType(cfg.Type)
		if !ok {
			return nil, fmt.Errorf("unknown operator type %q", cfg.Type)
		}
		kind, ok := cmpKinds[canon]
		if !ok {
			return nil, fmt.Errorf("unknown operator type %q", cfg.Type)
		}
		first, err := compileOperand("first", cfg.First)
		if err != nil {
			return nil, err
		}
		second, err := compileOperand("second", cfg.Second)
		if err != nil {
			return nil, err
		}
		return &cmpNode{kind: kind, first: first, second: second}, nil
	}
}

func compileConnective(cfg *ruleconf.Operator, isAnd bool) (node, error) {
	children := make([]node, 0, len(cfg.Operands))
	for _, op := range cfg.Operands {
		child, err := compile(op)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if isAnd {
		return &andNode{children: children}, nil
	}
	return &orNode{children: children}, nil
}

// andNode short-circuits on the first false child. An empty AND is true.
// A child error is propagated only if no false child decides the outcome.
type andNode struct {
	children []node
}

func (n *andNode) eval(ev value.Event, scope *accessor.Scope) (bool, error) {
	var firstErr error
	for _, c := range n.children {
		b, err := c.eval(ev, scope)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !b {
			return false, nil
		}
	}
	if firstErr != nil {
		return false, firstErr
	}
	return true, nil
}

// orNode short-circuits on the first true child. An empty OR is false.
type orNode struct {
	children []node
}

func (n *orNode) eval(ev value.Event, scope *accessor.Scope) (bool, error) {
	var firstErr error
	for _, c := range n.children {
		b, err := c.eval(ev, scope)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if b {
			return true, nil
		}
	}
	if firstErr != nil {
		return false, firstErr
	}
	return false, nil
}

type notNode struct {
	child node
}

func (n *notNode) eval(ev value.Event, scope *accessor.Scope) (bool, error) {
	b, err := n.child.eval(ev, scope)
	if err != nil {
		return false, err
	}
	return !b, nil
}

type cmpKind int

const (
	cmpEquals cmpKind = iota
	cmpNotEquals
	cmpEqualsIgnoreCase
	cmpGreaterThan
	cmpGreaterEq
	cmpLessThan
	cmpLessEq
	cmpContains
	cmpContainsIgnoreCase
)

var cmpKinds = map[string]cmpKind{
	"equals":             cmpEquals,
	"notEquals":          cmpNotEquals,
	"equalsIgnoreCase":   cmpEqualsIgnoreCase,
	"greaterThan":        cmpGreaterThan,
	"greaterEq":          cmpGreaterEq,
	"lessThan":           cmpLessThan,
	"lessEq":             cmpLessEq,
	"contains":           cmpContains,
	"containsIgnoreCase": cmpContainsIgnoreCase,
}

type cmpNode struct {
	kind   cmpKind
	first  operand
	second operand
}

func (n *cmpNode) eval(ev value.Event, scope *accessor.Scope) (bool, error) {
	a, err := n.first.resolve(ev, scope)
	if err != nil {
		return false, err
	}
	b, err := n.second.resolve(ev, scope)
	if err != nil {
		return false, err
	}
	switch n.kind {
	case cmpEquals:
		return value.Equal(a, b), nil
	case cmpNotEquals:
		return !value.Equal(a, b), nil
	case cmpEqualsIgnoreCase:
		as, aok := a.AsString()
		bs, bok := b.AsString()
		if !aok || !bok {
			return false, nil
		}
		return strings.ToLower(as) == strings.ToLower(bs), nil
	case cmpGreaterThan, cmpGreaterEq, cmpLessThan, cmpLessEq:
		c, ok := value.Compare(a, b)
		if !ok {
			// Mixed-type ordering is false, never an error.
			return false, nil
		}
		switch n.kind {
		case cmpGreaterThan:
			return c > 0, nil
		case cmpGreaterEq:
			return c >= 0, nil
		case cmpLessThan:
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case cmpContains:
		return containsValue(a, b), nil
	case cmpContainsIgnoreCase:
		return containsValueFold(a, b), nil
	default:
		return false, &OperatorError{Kind: TypeMismatch, Err: fmt.Errorf("unhandled comparison kind %d", n.kind)}
	}
}

// containsValue implements Contains: substring for strings, membership by
// deep equality for arrays, key membership for objects when the second
// operand is a string; anything else is false.
func containsValue(container, item value.Value) bool {
	if s, ok := container.AsString(); ok {
		is, ok := item.AsString()
		if !ok {
			return false
		}
		return strings.Contains(s, is)
	}
	if arr, ok := container.AsArray(); ok {
		for _, e := range arr {
			if value.Equal(e, item) {
				return true
			}
		}
		return false
	}
	if keys, _, ok := container.AsObject(); ok {
		is, ok := item.AsString()
		if !ok {
			return false
		}
		for _, k := range keys {
			if k == is {
				return true
			}
		}
		return false
	}
	return false
}

// containsValueFold is containsValue with strings folded to lowercase
// before comparison.
func containsValueFold(container, item value.Value) bool {
	if s, ok := container.AsString(); ok {
		is, ok := item.AsString()
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(is))
	}
	if arr, ok := container.AsArray(); ok {
		for _, e := range arr {
			es, eok := e.AsString()
			is, iok := item.AsString()
			if eok && iok {
				if strings.ToLower(es) == strings.ToLower(is) {
					return true
				}
				continue
			}
			if value.Equal(e, item) {
				return true
			}
		}
		return false
	}
	if keys, _, ok := container.AsObject(); ok {
		is, ok := item.AsString()
		if !ok {
			return false
		}
		for _, k := range keys {
			if strings.EqualFold(k, is) {
				return true
			}
		}
		return false
	}
	return false
}

type regexNode struct {
	re     *regexp.Regexp
	target operand
}

func (n *regexNode) eval(ev value.Event, scope *accessor.Scope) (bool, error) {
	v, err := n.target.resolve(ev, scope)
	if err != nil {
		return false, err
	}
	s, ok := v.AsString()
	if !ok {
		return false, nil
	}
	return n.re.MatchString(s), nil
}
