package models

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

// Value kinds.
const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindMap
)

// Value is one metadata value: a string, number, boolean, or nested map.
// The zero Value is null.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	m    Metadata
}

// Metadata is a shallow key-value map attached to an event.
type Metadata map[string]Value

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric Value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Int returns a numeric Value from an int.
func Int(n int) Value { return Value{kind: KindNumber, num: float64(n)} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Map returns a nested map Value. The map is copied.
func Map(m Metadata) Value { return Value{kind: KindMap, m: m.Clone()} }

// Kind reports which variant v holds.
func (v Value) Kind() ValueKind { return v.kind }

// Str returns the string payload and whether v is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the numeric payload and whether v is a number.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Boolean returns the boolean payload and whether v is a boolean.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// Nested returns a copy of the nested map and whether v is a map.
func (v Value) Nested() (Metadata, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m.Clone(), true
}

// Equal reports deep equality of two values.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindMap:
		return v.m.Equal(o.m)
	default:
		return true
	}
}

// MarshalJSON encodes the value as its plain JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("metadata number %v is not representable in JSON", v.num)
		}
		return []byte(strconv.FormatFloat(v.num, 'f', -1, 64)), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindMap:
		return v.m.MarshalJSON()
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes plain JSON into a Value.
func (v *Value) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*v = ValueFromAny(raw)
	return nil
}

// Clone returns a deep copy of m. A nil map clones to an empty map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		if v.kind == KindMap {
			v = Value{kind: KindMap, m: v.m.Clone()}
		}
		out[k] = v
	}
	return out
}

// Equal reports deep equality of two metadata maps.
func (m Metadata) Equal(o Metadata) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Validate reports the first value that cannot be encoded on the wire,
// descending into nested maps.
func (m Metadata) Validate() error {
	for k, v := range m {
		switch v.kind {
		case KindNumber:
			if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
				return fmt.Errorf("metadata key %q: number %v is not representable in JSON", k, v.num)
			}
		case KindMap:
			if err := v.m.Validate(); err != nil {
				return fmt.Errorf("metadata key %q: %w", k, err)
			}
		}
	}
	return nil
}

// MarshalJSON encodes the map with sorted keys. A nil map encodes as {}.
func (m Metadata) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := m[k].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", k, err)
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	return append(buf, '}'), nil
}

// UnmarshalJSON decodes a JSON object into metadata.
func (m *Metadata) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = MetadataFromAny(raw)
	return nil
}

// MetadataFromAny converts decoded JSON (or any map[string]any) into Metadata.
func MetadataFromAny(raw map[string]any) Metadata {
	out := make(Metadata, len(raw))
	for k, v := range raw {
		out[k] = ValueFromAny(v)
	}
	return out
}

// ValueFromAny converts a dynamic value into a Value. Slices and other
// unsupported shapes are rendered to their JSON text.
func ValueFromAny(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Value{}
	case Value:
		return x
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int32:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case uint:
		return Number(float64(x))
	case uint32:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return String(x.String())
		}
		return Number(f)
	case map[string]any:
		return Value{kind: KindMap, m: MetadataFromAny(x)}
	case Metadata:
		return Map(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return String(fmt.Sprint(x))
		}
		return String(string(b))
	}
}
