package jsonld

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PreservesKeyOrder(t *testing.T) {
	v, err := Parse([]byte(`{"z": 1, "a": "x", "m": [true, null, 2.5]}`))
	require.NoError(t, err)

	obj, ok := v.Object()
	require.True(t, ok)
	var keys []string
	for _, m := range obj.Members() {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{"z", "a", "m"}, keys)

	n, ok := obj.Get("z").Number()
	require.True(t, ok)
	assert.Equal(t, "1", n.String())

	s, ok := obj.Get("a").Str()
	require.True(t, ok)
	assert.Equal(t, "x", s)

	items, ok := obj.Get("m").Array()
	require.True(t, ok)
	require.Len(t, items, 3)
	b, ok := items[0].Bool()
	assert.True(t, ok)
	assert.True(t, b)
	assert.True(t, items[1].IsNull())
	assert.Equal(t, Number, items[2].Kind())
}

func TestParse_Scalars(t *testing.T) {
	tests := []struct {
		input string
		kind  Kind
	}{
		{`"hello"`, String},
		{`42`, Number},
		{`false`, Bool},
		{`null`, Null},
		{`[]`, Array},
		{`{}`, Object},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind())
		})
	}
}

func TestParse_NestedObjectKeysAreNotValues(t *testing.T) {
	v, err := Parse([]byte(`{"address": {"@type": "PostalAddress", "streetAddress": "Main St 1"}, "name": "ACME"}`))
	require.NoError(t, err)

	typ, ok := v.Get("address").Get("@type").Str()
	require.True(t, ok)
	assert.Equal(t, "PostalAddress", typ)

	name, _ := v.Get("name").Str()
	assert.Equal(t, "ACME", name)
}

func TestParse_DuplicateKeyKeepsLastValue(t *testing.T) {
	v, err := Parse([]byte(`{"a": 1, "b": 2, "a": 3}`))
	require.NoError(t, err)

	obj, _ := v.Object()
	assert.Equal(t, 2, obj.Len())
	n, _ := obj.Get("a").Number()
	assert.Equal(t, "3", n.String())
	assert.Equal(t, "a", obj.Members()[0].Key)
}

func TestParse_Errors(t *testing.T) {
	for _, input := range []string{
		``,
		`{"a": 1`,
		`{"a" 1}`,
		`[1, 2,]`,
		`{"a": 1} {"b": 2}`,
		`{"a": undefined}`,
	} {
		_, err := Parse([]byte(input))
		assert.Error(t, err, "input %q", input)
	}
}

func TestParseDepth_TooDeep(t *testing.T) {
	deep := strings.Repeat("[", 100) + strings.Repeat("]", 100)

	_, err := ParseDepth([]byte(deep), 50)
	assert.ErrorIs(t, err, ErrTooDeep)

	_, err = ParseDepth([]byte(deep), 100)
	assert.NoError(t, err)
}

func TestValue_AccessorsOnMismatchedShapes(t *testing.T) {
	s := StringValue("x")

	assert.True(t, s.Get("anything").IsAbsent())
	_, ok := s.Object()
	assert.False(t, ok)
	_, ok = s.Array()
	assert.False(t, ok)
	_, ok = s.Number()
	assert.False(t, ok)

	var absent Value
	assert.True(t, absent.IsAbsent())
	assert.Equal(t, "absent", absent.Kind().String())
	_, ok = absent.Str()
	assert.False(t, ok)

	var nilMap *Map
	assert.True(t, nilMap.Get("a").IsAbsent())
	assert.False(t, nilMap.Has("a"))
	assert.Zero(t, nilMap.Len())
}

func TestValue_Truthy(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"absent", Value{}, false},
		{"null", NullValue(), false},
		{"empty string", StringValue(""), false},
		{"string", StringValue("a"), true},
		{"zero", NumberValue("0"), false},
		{"zero float", NumberValue("0.0"), false},
		{"number", NumberValue("7"), true},
		{"false", BoolValue(false), false},
		{"true", BoolValue(true), true},
		{"empty array", ArrayValue(), false},
		{"array", ArrayValue(NullValue()), true},
		{"empty object", ObjectValue(), false},
		{"object", ObjectValue(Member{Key: "a", Value: NullValue()}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Truthy())
		})
	}
}
