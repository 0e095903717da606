package accessor

import (
	"strconv"

	"github.com/WuerthPhoenix/tornado-match/internal/value"
)

// Eval resolves a compiled Accessor against an event and variable scope.
func Eval(a *Accessor, ev value.Event, scope *Scope) (value.Value, error) {
	segs := a.segments
	first := segs[0]
	if first.kind != segField {
		return value.Null, fail(a.raw, "path must start with a field segment")
	}

	switch first.field {
	case "@", "item":
		if scope == nil || !scope.hasItem {
			return value.Null, fail(a.raw, "no current item in this context")
		}
		v, err := walkRemaining(scope.item, segs[1:])
		return v, withPath(err, a.raw)
	case "_variables":
		if scope == nil {
			return value.Null, fail(a.raw, "no variable scope available")
		}
		v, ok := scope.lookupVariable(segs[1:])
		if !ok {
			return value.Null, fail(a.raw, "unresolved variable")
		}
		return v, nil
	case "event":
		v, err := evalEvent(a.raw, ev, segs[1:])
		return v, withPath(err, a.raw)
	default:
		return value.Null, fail(a.raw, "unknown root \""+first.field+"\"")
	}
}

// withPath fills in the Path field of an *AccessFailure produced deep
// inside walkRemaining, which does not know the full original path string.
func withPath(err error, path string) error {
	if af, ok := err.(*AccessFailure); ok && af.Path == "" {
		af.Path = path
	}
	return err
}

func evalEvent(raw string, ev value.Event, rest []segment) (value.Value, error) {
	if len(rest) == 0 {
		obj := value.NewObject().
			Set("type", value.String(ev.Type)).
			Set("created_ms", value.Number(float64(ev.CreatedMs))).
			Set("payload", ev.Payload).
			Set("metadata", ev.Metadata).
			Build()
		return obj, nil
	}
	switch rest[0].field {
	case "type":
		if len(rest) != 1 {
			return value.Null, fail(raw, "event.type has no children")
		}
		return value.String(ev.Type), nil
	case "created_ms":
		if len(rest) != 1 {
			return value.Null, fail(raw, "event.created_ms has no children")
		}
		return value.Number(float64(ev.CreatedMs)), nil
	case "payload":
		v, err := walkRemaining(ev.Payload, rest[1:])
		return v, withPath(err, raw)
	case "metadata":
		v, err := walkRemaining(ev.Metadata, rest[1:])
		return v, withPath(err, raw)
	default:
		return value.Null, fail(raw, "unknown event field \""+rest[0].field+"\"")
	}
}

func walkRemaining(v value.Value, rest []segment) (value.Value, error) {
	current := v
	for _, s := range rest {
		switch s.kind {
		case segField:
			_, fields, isObj := current.AsObject()
			if !isObj {
				return value.Null, fail("", "expected object, got "+current.Kind().String())
			}
			next, ok := fields[s.field]
			if !ok {
				return value.Null, fail("", "missing key \""+s.field+"\"")
			}
			current = next
		case segIndex:
			arr, ok := current.AsArray()
			if !ok {
				return value.Null, fail("", "expected array, got "+current.Kind().String())
			}
			if s.index < 0 || s.index >= len(arr) {
				return value.Null, fail("", "index "+strconv.Itoa(s.index)+" out of range")
			}
			current = arr[s.index]
		}
	}
	return current, nil
}
