package operator

import (
	"testing"

	"github.com/WuerthPhoenix/tornado-match/internal/accessor"
	"github.com/WuerthPhoenix/tornado-match/internal/ruleconf"
	"github.com/WuerthPhoenix/tornado-match/internal/value"
)

func strVal(s string) *value.Value {
	v := value.String(s)
	return &v
}

func numVal(n float64) *value.Value {
	v := value.Number(n)
	return &v
}

func testEvent() value.Event {
	payload := value.NewObject().
		Set("subject", value.String("Alert From Host")).
		Set("temperature", value.Number(42)).
		Set("tags", value.Array([]value.Value{value.String("critical"), value.String("disk")})).
		Build()
	return value.NewEvent("email", 1, payload, value.Object(nil, nil))
}

func mustCompile(t *testing.T, cfg *ruleconf.Operator) *Compiled {
	t.Helper()
	c, err := Compile(cfg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return c
}

func mustEval(t *testing.T, c *Compiled) bool {
	t.Helper()
	b, err := c.Eval(testEvent(), accessor.NewScope())
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	return b
}

func TestNilOperatorIsTrue(t *testing.T) {
	var c *Compiled
	if !mustEval(t, c) {
		t.Error("nil operator should evaluate to true")
	}
}

func TestEqualsOnAccessor(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{
		Type:   "equals",
		First:  strVal("${event.type}"),
		Second: strVal("email"),
	})
	if !mustEval(t, c) {
		t.Error("expected match")
	}
}

func TestEqualsAlias(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{
		Type:   "equal",
		First:  strVal("${event.type}"),
		Second: strVal("email"),
	})
	if !mustEval(t, c) {
		t.Error("alias 'equal' should behave as 'equals'")
	}
}

func TestEqualsNumberKeepsType(t *testing.T) {
	// A single-placeholder template must compare as a number, not as the
	// rendered string "42".
	c := mustCompile(t, &ruleconf.Operator{
		Type:   "equals",
		First:  strVal("${event.payload.temperature}"),
		Second: numVal(42),
	})
	if !mustEval(t, c) {
		t.Error("numeric accessor should equal numeric literal")
	}
}

func TestEqualsMissingKeyIsError(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{
		Type:   "equals",
		First:  strVal("${event.payload.nope}"),
		Second: strVal("x"),
	})
	_, err := c.Eval(testEvent(), accessor.NewScope())
	if err == nil {
		t.Fatal("expected an operator error for a missing key")
	}
	opErr, ok := err.(*OperatorError)
	if !ok {
		t.Fatalf("expected *OperatorError, got %T", err)
	}
	if opErr.Kind != AccessorFailed {
		t.Errorf("expected AccessorFailed, got %v", opErr.Kind)
	}
}

func TestNotEquals(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{
		Type:   "ne",
		First:  strVal("${event.type}"),
		Second: strVal("sms"),
	})
	if !mustEval(t, c) {
		t.Error("expected notEquals to hold")
	}
}

func TestEqualsIgnoreCase(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{
		Type:   "equalsIgnoreCase",
		First:  strVal("${event.type}"),
		Second: strVal("EMAIL"),
	})
	if !mustEval(t, c) {
		t.Error("expected case-insensitive match")
	}
}

func TestEqualsIgnoreCaseNonStringIsFalse(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{
		Type:   "equalsIgnoreCase",
		First:  strVal("${event.payload.temperature}"),
		Second: strVal("42"),
	})
	if mustEval(t, c) {
		t.Error("equalsIgnoreCase on a number must be false")
	}
}

func TestOrdering(t *testing.T) {
	cases := []struct {
		typ  string
		want bool
	}{
		{"greaterThan", true},
		{"greaterEq", true},
		{"lessThan", false},
		{"lessEq", false},
	}
	for _, tc := range cases {
		c := mustCompile(t, &ruleconf.Operator{
			Type:   tc.typ,
			First:  strVal("${event.payload.temperature}"),
			Second: numVal(10),
		})
		if got := mustEval(t, c); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.typ, got, tc.want)
		}
	}
}

func TestOrderingMixedTypesIsFalse(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{
		Type:   "gt",
		First:  strVal("${event.payload.temperature}"),
		Second: strVal("10"),
	})
	if mustEval(t, c) {
		t.Error("mixed-type ordering must be false, not an error")
	}
}

func TestContainsSubstring(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{
		Type:   "contains",
		First:  strVal("${event.payload.subject}"),
		Second: strVal("From"),
	})
	if !mustEval(t, c) {
		t.Error("expected substring match")
	}
}

func TestContainsArrayMembership(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{
		Type:   "contain",
		First:  strVal("${event.payload.tags}"),
		Second: strVal("disk"),
	})
	if !mustEval(t, c) {
		t.Error("expected array membership")
	}
}

func TestContainsObjectKey(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{
		Type:   "contains",
		First:  strVal("${event.payload}"),
		Second: strVal("subject"),
	})
	if !mustEval(t, c) {
		t.Error("expected object key membership")
	}
}

func TestContainsIgnoreCase(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{
		Type:   "containIgnoreCase",
		First:  strVal("${event.payload.subject}"),
		Second: strVal("alert from"),
	})
	if !mustEval(t, c) {
		t.Error("expected folded substring match")
	}
}

func TestRegexOperator(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{
		Type:   "regex",
		Regex:  "^Alert",
		Target: strVal("${event.payload.subject}"),
	})
	if !mustEval(t, c) {
		t.Error("expected regex match")
	}
}

func TestRegexNonStringTargetIsFalse(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{
		Type:   "regex",
		Regex:  "42",
		Target: strVal("${event.payload.tags}"),
	})
	if mustEval(t, c) {
		t.Error("regex on a non-string target must be false")
	}
}

func TestRegexInvalidPatternFailsCompile(t *testing.T) {
	_, err := Compile(&ruleconf.Operator{
		Type:   "regex",
		Regex:  "([unclosed",
		Target: strVal("${event.type}"),
	})
	if err == nil {
		t.Fatal("expected compile error for invalid pattern")
	}
}

func TestUnknownTypeFailsCompile(t *testing.T) {
	_, err := Compile(&ruleconf.Operator{Type: "bogus"})
	if err == nil {
		t.Fatal("expected compile error for unknown operator type")
	}
}

func TestEmptyAndIsTrue(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{Type: "AND"})
	if !mustEval(t, c) {
		t.Error("empty AND must be true")
	}
}

func TestEmptyOrIsFalse(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{Type: "OR"})
	if mustEval(t, c) {
		t.Error("empty OR must be false")
	}
}

func TestAndShortCircuitSwallowsLaterError(t *testing.T) {
	// First child is false; the erroring second child must never surface.
	c := mustCompile(t, &ruleconf.Operator{
		Type: "AND",
		Operands: []*ruleconf.Operator{
			{Type: "equals", First: strVal("${event.type}"), Second: strVal("sms")},
			{Type: "equals", First: strVal("${event.payload.missing}"), Second: strVal("x")},
		},
	})
	b, err := c.Eval(testEvent(), accessor.NewScope())
	if err != nil {
		t.Fatalf("short-circuited AND must not error: %v", err)
	}
	if b {
		t.Error("expected false")
	}
}

func TestAndPropagatesErrorWithoutShortCircuit(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{
		Type: "AND",
		Operands: []*ruleconf.Operator{
			{Type: "equals", First: strVal("${event.payload.missing}"), Second: strVal("x")},
			{Type: "equals", First: strVal("${event.type}"), Second: strVal("email")},
		},
	})
	if _, err := c.Eval(testEvent(), accessor.NewScope()); err == nil {
		t.Fatal("AND with an erroring child and no false child must error")
	}
}

func TestOrShortCircuitSwallowsLaterError(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{
		Type: "OR",
		Operands: []*ruleconf.Operator{
			{Type: "equals", First: strVal("${event.type}"), Second: strVal("email")},
			{Type: "equals", First: strVal("${event.payload.missing}"), Second: strVal("x")},
		},
	})
	b, err := c.Eval(testEvent(), accessor.NewScope())
	if err != nil {
		t.Fatalf("short-circuited OR must not error: %v", err)
	}
	if !b {
		t.Error("expected true")
	}
}

func TestNotOfErrorIsError(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{
		Type: "NOT",
		Operand: &ruleconf.Operator{
			Type: "equals", First: strVal("${event.payload.missing}"), Second: strVal("x"),
		},
	})
	if _, err := c.Eval(testEvent(), accessor.NewScope()); err == nil {
		t.Fatal("NOT of an error must be an error")
	}
}

func TestNestedConnectives(t *testing.T) {
	c := mustCompile(t, &ruleconf.Operator{
		Type: "AND",
		Operands: []*ruleconf.Operator{
			{Type: "equals", First: strVal("${event.type}"), Second: strVal("email")},
			{
				Type: "OR",
				Operands: []*ruleconf.Operator{
					{Type: "equals", First: strVal("${event.type}"), Second: strVal("sms")},
					{Type: "greaterThan", First: strVal("${event.payload.temperature}"), Second: numVal(40)},
				},
			},
		},
	})
	if !mustEval(t, c) {
		t.Error("expected nested connectives to match")
	}
}
