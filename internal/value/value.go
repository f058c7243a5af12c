// Package value implements the JSON value tree used by the query
// compiler and the document runtime functions. Unlike a plain
// map[string]any decode, it preserves object key order and keeps
// integers distinct from floats.
package value

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindData
	KindArray
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindData:
		return "data"
	case KindArray:
		return "array"
	case KindDict:
		return "dict"
	default:
		return "unknown"
	}
}

// DictEntry is one key/value pair of a dict, in insertion order.
type DictEntry struct {
	Key   string
	Value *Value
}

// Value is an immutable tagged variant. The zero value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	d    []byte
	arr  []*Value
	dict []DictEntry
}

// Constructors.

// Null returns the null value.
func Null() *Value { return &Value{kind: KindNull} }

// NewBool returns a boolean value.
func NewBool(b bool) *Value { return &Value{kind: KindBool, b: b} }

// NewInt returns an integer value.
func NewInt(i int64) *Value { return &Value{kind: KindInt, i: i} }

// NewFloat returns a floating-point value.
func NewFloat(f float64) *Value { return &Value{kind: KindFloat, f: f} }

// NewString returns a string value.
func NewString(s string) *Value { return &Value{kind: KindString, s: s} }

// NewData returns a binary value. JSON decoding never produces one;
// they enter through programmatic construction (e.g. blob parameters).
func NewData(d []byte) *Value { return &Value{kind: KindData, d: d} }

// NewArray returns an array value over the given items.
func NewArray(items ...*Value) *Value { return &Value{kind: KindArray, arr: items} }

// NewDict returns a dict value over the given entries, preserving order.
func NewDict(entries ...DictEntry) *Value { return &Value{kind: KindDict, dict: entries} }

// Kind returns the variant tag.
func (v *Value) Kind() Kind { return v.kind }

// Bool returns the boolean payload (false for other kinds).
func (v *Value) Bool() bool { return v.kind == KindBool && v.b }

// Int returns the integer payload, truncating floats.
func (v *Value) Int() int64 {
	if v.kind == KindFloat {
		return int64(v.f)
	}
	return v.i
}

// Float returns the numeric payload as a float64.
func (v *Value) Float() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// Str returns the string payload and whether the value is a string.
func (v *Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Data returns the binary payload.
func (v *Value) Data() []byte { return v.d }

// Array returns the items of an array value, or nil for other kinds.
func (v *Value) Array() []*Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr
}

// Dict returns the entries of a dict value in insertion order.
func (v *Value) Dict() []DictEntry {
	if v.kind != KindDict {
		return nil
	}
	return v.dict
}

// Get looks up a dict key. Returns nil if the key is absent or the
// value is not a dict.
func (v *Value) Get(key string) *Value {
	for _, e := range v.dict {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

// IsNumber reports whether the value is an int or float.
func (v *Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// NumberString returns the canonical textual form of a numeric value:
// integers in base 10, floats in shortest round-trip form.
func (v *Value) NumberString() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return ""
	}
}

// ToString renders the value as a plain string: strings verbatim,
// numbers in canonical form, booleans as true/false, null as empty.
func (v *Value) ToString() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt, KindFloat:
		return v.NumberString()
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Encode renders the value back to JSON text. Dict key order is
// preserved. Data kinds have no JSON form and encode as null.
func (v *Value) Encode() string {
	var b strings.Builder
	v.encode(&b)
	return b.String()
}

func (v *Value) encode(b *strings.Builder) {
	switch v.kind {
	case KindBool:
		b.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		b.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		b.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		writeJSONString(b, v.s)
	case KindArray:
		b.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				b.WriteByte(',')
			}
			item.encode(b)
		}
		b.WriteByte(']')
	case KindDict:
		b.WriteByte('{')
		for i, e := range v.dict {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSONString(b, e.Key)
			b.WriteByte(':')
			e.Value.encode(b)
		}
		b.WriteByte('}')
	default:
		b.WriteString("null")
	}
}

func writeJSONString(b *strings.Builder, s string) {
	enc, err := json.Marshal(s)
	if err != nil {
		b.WriteString(`""`)
		return
	}
	b.Write(enc)
}
