// Package payload models the opaque job payload as a tagged union of
// null / bool / number / string / array / object. Handlers project the
// fields they understand through the typed accessors instead of passing
// untyped maps through the kernel.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/faultline-io/faultline/internal/hash"
)

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
		return "invalid"
	}
}

// Value is immutable after construction.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	arr  []Value
	obj  map[string]Value
}

func Null() Value             { return Value{kind: KindNull} }
func Bool(b bool) Value       { return Value{kind: KindBool, b: b} }
func Number(n float64) Value  { return Value{kind: KindNumber, num: n} }
func Int(n int64) Value       { return Value{kind: KindNumber, num: float64(n)} }
func String(s string) Value   { return Value{kind: KindString, str: s} }
func Array(vs ...Value) Value { return Value{kind: KindArray, arr: append([]Value(nil), vs...)} }

func Object(fields map[string]Value) Value {
	obj := make(map[string]Value, len(fields))
	for k, v := range fields {
		obj[k] = v
	}
	return Value{kind: KindObject, obj: obj}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// AsInt succeeds only for numbers without a fractional part.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	n := int64(v.num)
	if float64(n) != v.num {
		return 0, false
	}
	return n, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) Items() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return append([]Value(nil), v.arr...), true
}

// Field looks up a key on an object value.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	f, ok := v.obj[name]
	return f, ok
}

// IntField is the common handler projection: v must be an object and the
// field, when present, an integral number.
func (v Value) IntField(name string) (int64, bool) {
	f, ok := v.Field(name)
	if !ok {
		return 0, false
	}
	return f.AsInt()
}

func (v Value) StringField(name string) (string, bool) {
	f, ok := v.Field(name)
	if !ok {
		return "", false
	}
	return f.AsString()
}

// MarshalJSON renders the value as plain JSON for jsonb storage.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case KindObject:
		if len(v.obj) == 0 {
			return []byte("{}"), nil
		}
		return json.Marshal(v.obj)
	default:
		return nil, fmt.Errorf("payload: invalid kind %d", v.kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := fromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func fromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("payload: bad number %q: %w", t.String(), err)
		}
		return Number(n), nil
	case string:
		return String(t), nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, e := range t {
			v, err := fromAny(e)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Array(items...), nil
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := fromAny(e)
			if err != nil {
				return Value{}, err
			}
			fields[k] = v
		}
		return Object(fields), nil
	default:
		return Value{}, fmt.Errorf("payload: unsupported JSON value %T", raw)
	}
}

// CanonicalHash returns a deterministic digest of the value. Object keys are
// visited in sorted order so logically equal payloads hash identically
// regardless of JSON key order.
func (v Value) CanonicalHash() string {
	return hash.StringsCanonical(v.canonicalParts()...)
}

func (v Value) canonicalParts() []string {
	switch v.kind {
	case KindNull:
		return []string{"z"}
	case KindBool:
		return []string{"b", strconv.FormatBool(v.b)}
	case KindNumber:
		return []string{"n", strconv.FormatFloat(v.num, 'g', -1, 64)}
	case KindString:
		return []string{"s", v.str}
	case KindArray:
		parts := []string{"a", strconv.Itoa(len(v.arr))}
		for _, e := range v.arr {
			parts = append(parts, e.canonicalParts()...)
		}
		return parts
	case KindObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := []string{"o", strconv.Itoa(len(keys))}
		for _, k := range keys {
			parts = append(parts, k)
			parts = append(parts, v.obj[k].canonicalParts()...)
		}
		return parts
	default:
		return []string{"invalid"}
	}
}
