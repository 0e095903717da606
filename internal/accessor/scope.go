package accessor

import "github.com/WuerthPhoenix/tornado-match/internal/value"

// Scope is the per-event, per-rule variable environment an Accessor
// resolves `_variables...` and `item` roots against. It is owned
// exclusively by the goroutine evaluating one event and is discarded when
// that event completes.
type Scope struct {
	// current holds the variables extracted so far by the rule currently
	// being evaluated; referenced via the unqualified `_variables.VAR_NAME`.
	current map[string]value.Value
	// byRule holds the extracted-vars scope of every rule in the
	// enclosing rule set that has already matched, keyed by rule name;
	// referenced via `_variables.RULE_NAME.VAR_NAME`.
	byRule map[string]map[string]value.Value
	// item is the current foreach-context value, resolved by the bare
	// `item` and `@` roots.
	item    value.Value
	hasItem bool
}

// NewScope returns an empty scope (e.g. for filter-level evaluation,
// which has no variables).
func NewScope() *Scope {
	return &Scope{current: map[string]value.Value{}, byRule: map[string]map[string]value.Value{}}
}

// WithItem returns a copy of the scope with the foreach-context item set.
func (s *Scope) WithItem(v value.Value) *Scope {
	cp := *s
	cp.item = v
	cp.hasItem = true
	return &cp
}

// Bind records the current rule's extracted variable, making it visible to
// the unqualified `_variables.VAR_NAME` root for the remainder of this
// rule's own evaluation (e.g. within its own action templates).
func (s *Scope) Bind(name string, v value.Value) {
	s.current[name] = v
}

// Commit exposes the current rule's extracted variables to subsequent
// rules in the same rule set under `_variables.RULE_NAME.VAR_NAME`.
// Only matched rules become visible this way.
func (s *Scope) Commit(ruleName string) {
	snapshot := make(map[string]value.Value, len(s.current))
	for k, v := range s.current {
		snapshot[k] = v
	}
	s.byRule[ruleName] = snapshot
}

// NextRuleScope returns a scope for the next rule in the same rule set:
// a fresh current namespace, retaining all committed byRule namespaces.
func (s *Scope) NextRuleScope() *Scope {
	return &Scope{current: map[string]value.Value{}, byRule: s.byRule, item: s.item, hasItem: s.hasItem}
}

func (s *Scope) lookupVariable(segs []segment) (value.Value, bool) {
	if len(segs) == 0 || segs[0].kind != segField {
		return value.Null, false
	}
	first := segs[0].field
	if len(segs) >= 2 && segs[1].kind == segField {
		if rule, ok := s.byRule[first]; ok {
			v, ok := rule[segs[1].field]
			if !ok {
				return value.Null, false
			}
			out, err := walkRemaining(v, segs[2:])
			return out, err == nil
		}
	}
	if v, ok := s.current[first]; ok {
		out, err := walkRemaining(v, segs[1:])
		return out, err == nil
	}
	return value.Null, false
}
