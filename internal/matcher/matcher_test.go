package matcher

import (
	"reflect"
	"strings"
	"testing"

	"github.com/WuerthPhoenix/tornado-match/internal/ruleconf"
	"github.com/WuerthPhoenix/tornado-match/internal/tree"
	"github.com/WuerthPhoenix/tornado-match/internal/value"
)

func strVal(s string) *value.Value {
	v := value.String(s)
	return &v
}

func intPtr(i int) *int { return &i }

func typeEquals(eventType string) *ruleconf.Operator {
	return &ruleconf.Operator{
		Type:   "equals",
		First:  strVal("${event.type}"),
		Second: strVal(eventType),
	}
}

func emailEvent(payloadKV ...string) value.Event {
	obj := value.NewObject()
	for i := 0; i+1 < len(payloadKV); i += 2 {
		obj.Set(payloadKV[i], value.String(payloadKV[i+1]))
	}
	return value.NewEvent("email", 1, obj.Build(), value.Object(nil, nil))
}

func newDriver(t *testing.T, root *ruleconf.Node) *Driver {
	t.Helper()
	compiled, err := tree.Compile(root)
	if err != nil {
		t.Fatalf("tree compile failed: %v", err)
	}
	return New(compiled)
}

func ruleSetRoot(rules ...*ruleconf.Rule) *ruleconf.Node {
	return &ruleconf.Node{
		Kind:   ruleconf.NodeFilter,
		Name:   "root",
		Active: true,
		Children: []*ruleconf.Node{
			{Kind: ruleconf.NodeRuleSet, Name: "rs", Active: true, Rules: rules},
		},
	}
}

func logAction(payloadKV ...string) ruleconf.ActionTemplate {
	obj := value.NewObject()
	for i := 0; i+1 < len(payloadKV); i += 2 {
		obj.Set(payloadKV[i], value.String(payloadKV[i+1]))
	}
	return ruleconf.ActionTemplate{ID: "log", Payload: obj.Build()}
}

// S1: a rule matching on event type materializes its action payload.
func TestMatchEmailType(t *testing.T) {
	d := newDriver(t, ruleSetRoot(&ruleconf.Rule{
		Name: "emails", Continue: true, Active: true,
		Constraint: ruleconf.Constraint{Where: typeEquals("email")},
		Actions:    []ruleconf.ActionTemplate{logAction("subject", "${event.payload.subject}")},
	}))

	out := d.Match(emailEvent("subject", "hi"))
	rr := out.Result.At("rs").Rule("emails")
	if rr.Status != StatusMatched {
		t.Fatalf("status = %v, want matched (%s)", rr.Status, rr.Message)
	}
	if len(rr.Actions) != 1 || rr.Actions[0].ID != "log" {
		t.Fatalf("actions = %+v", rr.Actions)
	}
	subject, _ := rr.Actions[0].Payload.Get("subject")
	if s, _ := subject.AsString(); s != "hi" {
		t.Errorf("subject = %v, want hi", subject)
	}
}

// S2: regex extraction feeds the action payload through _variables.
func TestRegexExtraction(t *testing.T) {
	d := newDriver(t, ruleSetRoot(&ruleconf.Rule{
		Name: "temp", Continue: true, Active: true,
		Constraint: ruleconf.Constraint{
			Where: typeEquals("email"),
			With: ruleconf.ExtractorMap{
				{Name: "temperature", Extractor: ruleconf.Extractor{
					From:  "${event.payload.body}",
					Regex: ruleconf.ExtractorRegex{Match: `([0-9]+)\sDegrees`, GroupMatchIdx: intPtr(1)},
				}},
			},
		},
		Actions: []ruleconf.ActionTemplate{logAction("t", "${_variables.temperature}")},
	}))

	out := d.Match(emailEvent("body", "It is 42 Degrees now"))
	rr := out.Result.At("rs").Rule("temp")
	if rr.Status != StatusMatched {
		t.Fatalf("status = %v (%s)", rr.Status, rr.Message)
	}
	tv, _ := rr.Actions[0].Payload.Get("t")
	if s, _ := tv.AsString(); s != "42" {
		t.Errorf("t = %v, want 42", tv)
	}
	if v, ok := rr.ExtractedVars["temperature"]; !ok {
		t.Error("extracted_vars should carry temperature")
	} else if s, _ := v.AsString(); s != "42" {
		t.Errorf("temperature = %v", v)
	}
}

// S3: a failed WHERE yields NotMatched and no actions.
func TestWhereFailsNoAction(t *testing.T) {
	d := newDriver(t, ruleSetRoot(&ruleconf.Rule{
		Name: "emails", Continue: true, Active: true,
		Constraint: ruleconf.Constraint{Where: typeEquals("email")},
		Actions:    []ruleconf.ActionTemplate{logAction("subject", "${event.payload.subject}")},
	}))

	out := d.Match(value.NewEvent("sms", 3, value.Object(nil, nil), value.Object(nil, nil)))
	rr := out.Result.At("rs").Rule("emails")
	if rr.Status != StatusNotMatched {
		t.Fatalf("status = %v, want not_matched", rr.Status)
	}
	if len(rr.Actions) != 0 {
		t.Errorf("actions = %+v, want none", rr.Actions)
	}
}

// S4: a false filter blocks its whole subtree as NotProcessed.
func TestFilterBlocksSubtree(t *testing.T) {
	root := &ruleconf.Node{
		Kind: ruleconf.NodeFilter, Name: "root", Active: true,
		Filter: typeEquals("email"),
		Children: []*ruleconf.Node{
			{
				Kind: ruleconf.NodeRuleSet, Name: "email_rs", Active: true,
				Rules: []*ruleconf.Rule{{Name: "always", Continue: true, Active: true}},
			},
		},
	}
	d := newDriver(t, root)

	out := d.Match(value.NewEvent("trap", 4, value.Object(nil, nil), value.Object(nil, nil)))
	if out.Result.Outcome != FilterNotMatched {
		t.Fatalf("root outcome = %v, want not_matched", out.Result.Outcome)
	}
	rs := out.Result.Child("email_rs")
	if rs.Outcome != FilterNotProcessed {
		t.Errorf("email_rs outcome = %v, want not_processed", rs.Outcome)
	}
	if rr := rs.Rule("always"); rr.Status != StatusNotProcessed {
		t.Errorf("rule status = %v, want not_processed", rr.Status)
	}
}

// S5: continue=false stops the rule set after a match.
func TestContinueFalseStopsRuleSet(t *testing.T) {
	d := newDriver(t, ruleSetRoot(
		&ruleconf.Rule{Name: "A", Continue: false, Active: true},
		&ruleconf.Rule{Name: "B", Continue: true, Active: true},
	))

	out := d.Match(emailEvent())
	rs := out.Result.At("rs")
	if rs.Rule("A").Status != StatusMatched {
		t.Errorf("A = %v, want matched", rs.Rule("A").Status)
	}
	if rs.Rule("B").Status != StatusNotProcessed {
		t.Errorf("B = %v, want not_processed", rs.Rule("B").Status)
	}
}

// S6: a later rule reads a previously matched rule's variable.
func TestCrossRuleVariable(t *testing.T) {
	d := newDriver(t, ruleSetRoot(
		&ruleconf.Rule{
			Name: "A", Continue: true, Active: true,
			Constraint: ruleconf.Constraint{
				With: ruleconf.ExtractorMap{
					{Name: "x", Extractor: ruleconf.Extractor{
						From:  "${event.payload.val}",
						Regex: ruleconf.ExtractorRegex{Match: `.*`, GroupMatchIdx: intPtr(0)},
					}},
				},
			},
		},
		&ruleconf.Rule{
			Name: "B", Continue: true, Active: true,
			Constraint: ruleconf.Constraint{
				Where: &ruleconf.Operator{
					Type:   "equals",
					First:  strVal("${_variables.A.x}"),
					Second: strVal("val"),
				},
			},
		},
	))

	out := d.Match(emailEvent("val", "val"))
	rs := out.Result.At("rs")
	if rs.Rule("A").Status != StatusMatched {
		t.Fatalf("A = %v (%s)", rs.Rule("A").Status, rs.Rule("A").Message)
	}
	if rs.Rule("B").Status != StatusMatched {
		t.Errorf("B = %v (%s), want matched", rs.Rule("B").Status, rs.Rule("B").Message)
	}
}

// S7: an extraction failure marks the rule PartiallyMatched and names the
// unresolved variable.
func TestExtractionFailureIsPartial(t *testing.T) {
	d := newDriver(t, ruleSetRoot(&ruleconf.Rule{
		Name: "temp", Continue: true, Active: true,
		Constraint: ruleconf.Constraint{
			With: ruleconf.ExtractorMap{
				{Name: "degrees", Extractor: ruleconf.Extractor{
					From:  "${event.payload.body}",
					Regex: ruleconf.ExtractorRegex{Match: `([0-9]+)\sDegrees`, GroupMatchIdx: intPtr(1)},
				}},
			},
		},
		Actions: []ruleconf.ActionTemplate{logAction("t", "${_variables.degrees}")},
	}))

	out := d.Match(emailEvent("body", "no temperature here"))
	rr := out.Result.At("rs").Rule("temp")
	if rr.Status != StatusPartiallyMatched {
		t.Fatalf("status = %v, want partially_matched", rr.Status)
	}
	if len(rr.Actions) != 0 {
		t.Errorf("actions = %+v, want none", rr.Actions)
	}
	if !strings.Contains(rr.Message, "degrees") {
		t.Errorf("message %q should name the unresolved variable", rr.Message)
	}
}

// A variable from a rule that did not match is invisible downstream.
func TestUnmatchedRuleVariablesInvisible(t *testing.T) {
	d := newDriver(t, ruleSetRoot(
		&ruleconf.Rule{
			Name: "A", Continue: true, Active: true,
			Constraint: ruleconf.Constraint{Where: typeEquals("sms")},
		},
		&ruleconf.Rule{
			Name: "B", Continue: true, Active: true,
			Constraint: ruleconf.Constraint{
				Where: &ruleconf.Operator{
					Type:   "equals",
					First:  strVal("${_variables.A.x}"),
					Second: strVal("val"),
				},
			},
		},
	))

	out := d.Match(emailEvent())
	rs := out.Result.At("rs")
	if rs.Rule("B").Status != StatusNotMatched {
		t.Errorf("B = %v, want not_matched", rs.Rule("B").Status)
	}
	if rs.Rule("B").Message == "" {
		t.Error("B should carry a diagnostic message")
	}
}

func TestInactiveRuleNotProcessed(t *testing.T) {
	d := newDriver(t, ruleSetRoot(
		&ruleconf.Rule{Name: "off", Continue: true, Active: false},
		&ruleconf.Rule{Name: "on", Continue: true, Active: true},
	))
	out := d.Match(emailEvent())
	rs := out.Result.At("rs")
	if rs.Rule("off").Status != StatusNotProcessed {
		t.Errorf("off = %v", rs.Rule("off").Status)
	}
	if rs.Rule("on").Status != StatusMatched {
		t.Errorf("on = %v", rs.Rule("on").Status)
	}
}

func TestInactiveFilterSkipsSubtree(t *testing.T) {
	root := &ruleconf.Node{
		Kind: ruleconf.NodeFilter, Name: "root", Active: true,
		Children: []*ruleconf.Node{
			{
				Kind: ruleconf.NodeFilter, Name: "off", Active: false,
				Children: []*ruleconf.Node{
					{
						Kind: ruleconf.NodeRuleSet, Name: "rs", Active: true,
						Rules: []*ruleconf.Rule{{Name: "r", Continue: true, Active: true}},
					},
				},
			},
		},
	}
	d := newDriver(t, root)
	out := d.Match(emailEvent())
	off := out.Result.Child("off")
	if off.Outcome != FilterNotProcessed {
		t.Errorf("off outcome = %v", off.Outcome)
	}
	if off.At("rs").Rule("r").Status != StatusNotProcessed {
		t.Errorf("inner rule should be not_processed")
	}
}

// A rule that errors must not affect its siblings' results.
func TestErrorLocality(t *testing.T) {
	good := &ruleconf.Rule{
		Name: "good", Continue: true, Active: true,
		Constraint: ruleconf.Constraint{Where: typeEquals("email")},
		Actions:    []ruleconf.ActionTemplate{logAction("subject", "${event.payload.subject}")},
	}
	bad := &ruleconf.Rule{
		Name: "bad", Continue: true, Active: true,
		Constraint: ruleconf.Constraint{
			With: ruleconf.ExtractorMap{
				{Name: "v", Extractor: ruleconf.Extractor{
					From:  "${event.payload.absent}",
					Regex: ruleconf.ExtractorRegex{Match: `.`},
				}},
			},
		},
	}

	ev := emailEvent("subject", "hi")
	withBad := newDriver(t, ruleSetRoot(bad, good)).Match(ev)
	without := newDriver(t, ruleSetRoot(good)).Match(ev)

	a := withBad.Result.At("rs").Rule("good")
	b := without.Result.At("rs").Rule("good")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("good rule result changed by erroring sibling:\nwith:    %+v\nwithout: %+v", a, b)
	}
	if withBad.Result.At("rs").Rule("bad").Status != StatusPartiallyMatched {
		t.Errorf("bad = %v", withBad.Result.At("rs").Rule("bad").Status)
	}
}

// An implicit filter is equivalent to promoting its children.
func TestImplicitFilterEquivalence(t *testing.T) {
	rs := func() *ruleconf.Node {
		return &ruleconf.Node{
			Kind: ruleconf.NodeRuleSet, Name: "rs", Active: true,
			Rules: []*ruleconf.Rule{{
				Name: "emails", Continue: true, Active: true,
				Constraint: ruleconf.Constraint{Where: typeEquals("email")},
			}},
		}
	}
	nested := &ruleconf.Node{
		Kind: ruleconf.NodeFilter, Name: "root", Active: true,
		Children: []*ruleconf.Node{
			{Kind: ruleconf.NodeFilter, Name: "mid", Active: true, Children: []*ruleconf.Node{rs()}},
		},
	}
	flat := &ruleconf.Node{
		Kind: ruleconf.NodeFilter, Name: "root", Active: true,
		Children: []*ruleconf.Node{rs()},
	}

	ev := emailEvent()
	a := newDriver(t, nested).Match(ev).Result.At("mid", "rs")
	b := newDriver(t, flat).Match(ev).Result.At("rs")
	if len(a.Rules) != len(b.Rules) {
		t.Fatalf("rule counts differ")
	}
	for i := range a.Rules {
		if a.Rules[i].Status != b.Rules[i].Status {
			t.Errorf("rule %s: %v vs %v", a.Rules[i].RuleName, a.Rules[i].Status, b.Rules[i].Status)
		}
	}
}

// Matching the same event against the same tree is deterministic.
func TestDeterminism(t *testing.T) {
	d := newDriver(t, ruleSetRoot(
		&ruleconf.Rule{
			Name: "temp", Continue: true, Active: true,
			Constraint: ruleconf.Constraint{
				Where: typeEquals("email"),
				With: ruleconf.ExtractorMap{
					{Name: "t", Extractor: ruleconf.Extractor{
						From:  "${event.payload.body}",
						Regex: ruleconf.ExtractorRegex{Match: `([0-9]+)`, GroupMatchIdx: intPtr(1)},
					}},
				},
			},
			Actions: []ruleconf.ActionTemplate{logAction("t", "${_variables.t}")},
		},
	))

	ev := emailEvent("body", "42 things")
	first := d.Match(ev)
	for i := 0; i < 10; i++ {
		if again := d.Match(ev); !reflect.DeepEqual(first.Result, again.Result) {
			t.Fatalf("run %d differs from first run", i)
		}
	}
}
