// Package value implements the JSON-shaped Value sum type and the
// immutable Event record that flow through the matching engine.
package value

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a JSON-shaped sum type: Null | Bool | Number | String | Array | Object.
//
// Object key order is preserved for iteration (AsObject) but irrelevant to
// Equal. Numbers are stored as float64; integers passed in are exact for
// any magnitude encountered in practice, and equality compares numeric
// magnitude rather than the Go type of the literal that produced it.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	keys []string
	obj  map[string]Value
}

// Null is the shared Null value.
var Null = Value{kind: KindNull}

// Bool constructs a Bool value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number constructs a Number value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String constructs a String value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array constructs an Array value from a slice (copied).
func Array(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: cp}
}

// Object constructs an Object value, preserving the given key order.
// Duplicate keys keep the last value but the first position.
func Object(keys []string, fields map[string]Value) Value {
	seen := make(map[string]bool, len(keys))
	ordered := make([]string, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		ordered = append(ordered, k)
	}
	obj := make(map[string]Value, len(fields))
	for k, v := range fields {
		obj[k] = v
	}
	return Value{kind: KindObject, keys: ordered, obj: obj}
}

// NewObject builds an Object from successive key/value pairs, preserving
// insertion order. It is a convenience constructor for tests and literals.
func NewObject() *ObjectBuilder {
	return &ObjectBuilder{fields: make(map[string]Value)}
}

// ObjectBuilder accumulates ordered key/value pairs for Object.
type ObjectBuilder struct {
	keys   []string
	fields map[string]Value
}

// Set appends or overwrites a field, preserving first-seen order.
func (b *ObjectBuilder) Set(key string, v Value) *ObjectBuilder {
	if _, ok := b.fields[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.fields[key] = v
	return b
}

// Build returns the accumulated Object value.
func (b *ObjectBuilder) Build() Value {
	return Object(b.keys, b.fields)
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) IsScalar() bool { return v.kind <= KindString }

// AsBool returns the boolean value and whether v is a Bool.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsNumber returns the numeric value and whether v is a Number.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.n, true
}

// AsString returns the string value and whether v is a String.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsArray returns the backing slice (not a copy) and whether v is an Array.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// AsObject returns the ordered keys and field map and whether v is an Object.
func (v Value) AsObject() ([]string, map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, nil, false
	}
	return v.keys, v.obj, true
}

// Get returns the field named key from an Object, or (Null, false) if v is
// not an Object or the key is absent. Absence is distinct from an explicit
// null field, which Get reports as (Null, true).
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Null, false
	}
	val, ok := v.obj[key]
	return val, ok
}

// Index returns the i'th array element, or (Null, false) if out of range
// or v is not an Array.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Null, false
	}
	return v.arr[i], true
}

// Len returns the number of elements/fields for Array/Object, 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.keys)
	default:
		return 0
	}
}

// Equal implements deep structural equality: numbers compare
// by magnitude, arrays element-wise in order, objects by key set and value
// regardless of key order.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Comparable reports whether two Values of possibly-matching kinds support
// ordering under Compare (numbers, strings, bools, nulls,
// arrays; mixed kinds are never comparable).
func Comparable(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNumber, KindString, KindBool, KindNull, KindArray:
		return true
	default:
		return false
	}
}

// Compare orders two like-kinded Values: numbers numerically, strings
// byte-wise, booleans false<true, nulls always equal, arrays
// lexicographically by element. The second return value is false when the
// pair is not comparable (mixed kinds, or Object).
func Compare(a, b Value) (int, bool) {
	if !Comparable(a, b) {
		return 0, false
	}
	switch a.kind {
	case KindNull:
		return 0, true
	case KindBool:
		if a.b == b.b {
			return 0, true
		}
		if !a.b && b.b {
			return -1, true
		}
		return 1, true
	case KindNumber:
		switch {
		case a.n < b.n:
			return -1, true
		case a.n > b.n:
			return 1, true
		default:
			return 0, true
		}
	case KindString:
		switch {
		case a.s < b.s:
			return -1, true
		case a.s > b.s:
			return 1, true
		default:
			return 0, true
		}
	case KindArray:
		for i := 0; i < len(a.arr) && i < len(b.arr); i++ {
			if c, ok := Compare(a.arr[i], b.arr[i]); ok && c != 0 {
				return c, true
			} else if !ok {
				return 0, false
			}
		}
		switch {
		case len(a.arr) < len(b.arr):
			return -1, true
		case len(a.arr) > len(b.arr):
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}

// Render renders a scalar Value in its canonical string form:
// strings as-is, numbers in canonical decimal form, booleans as
// true/false, null as "null". Render panics if called on a non-scalar;
// callers must check IsScalar first.
func Render(v Value) string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.n)
	case KindString:
		return v.s
	default:
		panic(fmt.Sprintf("value: Render called on non-scalar kind %s", v.kind))
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}

// FromJSON converts a decoded JSON or YAML value (as produced by
// encoding/json's default map[string]any/[]any/float64/string/bool/nil
// unmarshaling, or gopkg.in/yaml.v3's map[string]any/[]any/int/float64/
// string/bool/nil unmarshaling) into a Value tree.
func FromJSON(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case bool:
		return Bool(x)
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	case string:
		return String(x)
	case []any:
		items := make([]Value, len(x))
		for i, e := range x {
			items[i] = FromJSON(e)
		}
		return Array(items)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make(map[string]Value, len(x))
		for k, e := range x {
			fields[k] = FromJSON(e)
		}
		return Object(keys, fields)
	case map[any]any:
		// gopkg.in/yaml.v3 can surface this shape for maps whose keys
		// were not all plain strings in the source document.
		keys := make([]string, 0, len(x))
		fields := make(map[string]Value, len(x))
		for k, e := range x {
			ks := fmt.Sprintf("%v", k)
			keys = append(keys, ks)
			fields[ks] = FromJSON(e)
		}
		sort.Strings(keys)
		return Object(keys, fields)
	default:
		return Null
	}
}

// ToJSON converts a Value back into plain Go data suitable for
// encoding/json marshaling.
func ToJSON(v Value) any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = ToJSON(e)
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = ToJSON(e)
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToJSON(v))
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromJSON(raw)
	return nil
}
