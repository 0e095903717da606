package accessor

import (
	"testing"

	"github.com/WuerthPhoenix/tornado-match/internal/value"
)

func testEvent() value.Event {
	payload := value.NewObject().
		Set("subject", value.String("hi")).
		Set("tags", value.Array([]value.Value{value.String("a"), value.String("b")})).
		Build()
	return value.NewEvent("email", 1, payload, value.Object(nil, nil))
}

func TestEvalEventType(t *testing.T) {
	acc, err := Parse("event.type")
	if err != nil {
		t.Fatal(err)
	}
	v, err := Eval(acc, testEvent(), NewScope())
	if err != nil {
		t.Fatal(err)
	}
	s, _ := v.AsString()
	if s != "email" {
		t.Fatalf("got %q", s)
	}
}

func TestEvalPayloadField(t *testing.T) {
	acc, _ := Parse("event.payload.subject")
	v, err := Eval(acc, testEvent(), NewScope())
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.AsString(); s != "hi" {
		t.Fatalf("got %q", s)
	}
}

func TestEvalArrayIndex(t *testing.T) {
	acc, _ := Parse("event.payload.tags.1")
	v, err := Eval(acc, testEvent(), NewScope())
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.AsString(); s != "b" {
		t.Fatalf("got %q", s)
	}
}

func TestEvalMissingKeyIsAccessFailure(t *testing.T) {
	acc, _ := Parse("event.payload.nope")
	_, err := Eval(acc, testEvent(), NewScope())
	if err == nil {
		t.Fatal("expected AccessFailure")
	}
	if _, ok := err.(*AccessFailure); !ok {
		t.Fatalf("expected *AccessFailure, got %T", err)
	}
}

func TestEvalVariables(t *testing.T) {
	scope := NewScope()
	scope.Bind("x", value.String("val"))
	acc, _ := Parse("_variables.x")
	v, err := Eval(acc, testEvent(), scope)
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.AsString(); s != "val" {
		t.Fatalf("got %q", s)
	}
}

func TestEvalCrossRuleVariables(t *testing.T) {
	scope := NewScope()
	scope.Bind("x", value.String("val"))
	scope.Commit("A")
	next := scope.NextRuleScope()
	acc, _ := Parse("_variables.A.x")
	v, err := Eval(acc, testEvent(), next)
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.AsString(); s != "val" {
		t.Fatalf("got %q", s)
	}
}

func TestParseQuotedSegment(t *testing.T) {
	payload := value.NewObject().Set("a.b", value.String("dotted")).Build()
	ev := value.NewEvent("t", 1, payload, value.Object(nil, nil))
	acc, err := Parse(`event.payload."a.b"`)
	if err != nil {
		t.Fatal(err)
	}
	v, err := Eval(acc, ev, NewScope())
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.AsString(); s != "dotted" {
		t.Fatalf("got %q", s)
	}
}

func TestParseCacheReturnsConsistentResult(t *testing.T) {
	a1, err1 := Parse("event.payload.subject")
	a2, err2 := Parse("event.payload.subject")
	if err1 != nil || err2 != nil {
		t.Fatal(err1, err2)
	}
	if a1.String() != a2.String() {
		t.Fatalf("expected cached parse to match")
	}
}
