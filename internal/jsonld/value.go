// Package jsonld provides a small tagged-union JSON value for walking
// schema.org linked data without type assertions on map[string]any.
package jsonld

import "encoding/json"

// Kind discriminates the variants of Value.
type Kind uint8

const (
	// Absent is the zero Kind, returned for missing keys and mismatched shapes.
	Absent Kind = iota
	Null
	Bool
	Number
	String
	Array
	Object
)

var kindNames = [...]string{"absent", "null", "bool", "number", "string", "array", "object"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is an immutable JSON value. The zero Value is Absent.
type Value struct {
	kind Kind
	b    bool
	s    string // string contents or number literal
	arr  []Value
	obj  *Map
}

// Member is one key/value pair of an object, in document order.
type Member struct {
	Key   string
	Value Value
}

// Map is a JSON object that keeps its keys in document order.
type Map struct {
	members []Member
	index   map[string]int
}

// NewMap builds a Map from members. A repeated key keeps its first position
// and its last value.
func NewMap(members ...Member) *Map {
	m := &Map{index: make(map[string]int, len(members))}
	for _, mem := range members {
		m.set(mem.Key, mem.Value)
	}
	return m
}

func (m *Map) set(key string, v Value) {
	if i, ok := m.index[key]; ok {
		m.members[i].Value = v
		return
	}
	m.index[key] = len(m.members)
	m.members = append(m.members, Member{Key: key, Value: v})
}

// Get returns the value stored under key, or an Absent value.
func (m *Map) Get(key string) Value {
	if m == nil {
		return Value{}
	}
	if i, ok := m.index[key]; ok {
		return m.members[i].Value
	}
	return Value{}
}

// Has reports whether key is present (even with a null value).
func (m *Map) Has(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.index[key]
	return ok
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.members)
}

// Members returns the key/value pairs in document order.
func (m *Map) Members() []Member {
	if m == nil {
		return nil
	}
	return m.members
}

// NullValue returns a JSON null.
func NullValue() Value { return Value{kind: Null} }

// BoolValue wraps a boolean.
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// NumberValue wraps a number literal such as "27" or "1.5".
func NumberValue(lit string) Value { return Value{kind: Number, s: lit} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: String, s: s} }

// ArrayValue wraps a list of values.
func ArrayValue(items ...Value) Value { return Value{kind: Array, arr: items} }

// ObjectValue wraps an object built from members.
func ObjectValue(members ...Member) Value { return Value{kind: Object, obj: NewMap(members...)} }

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether v is the missing-value marker.
func (v Value) IsAbsent() bool { return v.kind == Absent }

// IsNull reports whether v is JSON null.
func (v Value) IsNull() bool { return v.kind == Null }

// Str returns the string contents when v is a string.
func (v Value) Str() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.s, true
}

// Number returns the number literal when v is a number.
func (v Value) Number() (json.Number, bool) {
	if v.kind != Number {
		return "", false
	}
	return json.Number(v.s), true
}

// Bool returns the boolean when v is a bool.
func (v Value) Bool() (bool, bool) {
	if v.kind != Bool {
		return false, false
	}
	return v.b, true
}

// Array returns the items when v is an array.
func (v Value) Array() ([]Value, bool) {
	if v.kind != Array {
		return nil, false
	}
	return v.arr, true
}

// Object returns the map when v is an object.
func (v Value) Object() (*Map, bool) {
	if v.kind != Object {
		return nil, false
	}
	return v.obj, true
}

// Get looks up key when v is an object. Any other shape yields Absent.
func (v Value) Get(key string) Value {
	if v.kind != Object {
		return Value{}
	}
	return v.obj.Get(key)
}

// Truthy follows the usual JSON-in-a-dynamic-language convention: absent,
// null, false, zero, "" and empty containers are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		f, err := json.Number(v.s).Float64()
		return err != nil || f != 0
	case String:
		return v.s != ""
	case Array:
		return len(v.arr) > 0
	case Object:
		return v.obj.Len() > 0
	default:
		return false
	}
}
