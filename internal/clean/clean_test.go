package clean

import (
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/postalcrawl/internal/jsonld"
	"github.com/sells-group/postalcrawl/internal/model"
)

func mustParse(t *testing.T, doc string) jsonld.Value {
	t.Helper()
	v, err := jsonld.Parse([]byte(doc))
	require.NoError(t, err)
	return v
}

func TestField(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "newline and padding", raw: `" test\nName,"`, want: "test Name,"},
		{name: "list with entity and number", raw: `["test &amp; Street", 27]`, want: "test & Street, 27"},
		{name: "escaped slash", raw: `"Potsdam\\/P"`, want: "Potsdam/P"},
		{name: "integer", raw: `12345`, want: "12345"},
		{name: "country object", raw: `{"@type": "Country", "name": ["Germany"]}`, want: "Germany"},
		{name: "object without name", raw: `{"@type": "Country"}`, want: ""},
		{name: "null", raw: `null`, want: ""},
		{name: "whitespace only", raw: `"  \n\t "`, want: ""},
		{name: "empty list elements dropped", raw: `["", null, "a"]`, want: "a"},
		{name: "literal unicode escape", raw: `"M\\u00fcnchen"`, want: "München"},
		{name: "literal surrogate pair", raw: `"\\ud83c\\udfe0 Home"`, want: "🏠 Home"},
		{name: "unpaired surrogate kept", raw: `"x\\ud83c y"`, want: `x\ud83c y`},
		{name: "escaped backslash not produced", raw: `"a\\u005cb"`, want: `a\u005cb`},
		{name: "crlf", raw: `"Main St\r\n12"`, want: "Main St 12"},
		{name: "double-escaped entity", raw: `"A &amp;amp; B"`, want: "A & B"},
		{name: "float literal", raw: `1.5`, want: "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Field(mustParse(t, tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestField_Absent(t *testing.T) {
	got, err := Field(jsonld.Value{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestField_UnsupportedType(t *testing.T) {
	for _, raw := range []string{`true`, `["a", false]`, `{"name": true}`} {
		_, err := Field(mustParse(t, raw))
		require.Error(t, err, raw)
		assert.True(t, eris.Is(err, ErrUnsupportedValue), raw)
	}
}

func TestString_Idempotent(t *testing.T) {
	inputs := []string{
		" test\nName,",
		`Potsdam\/P`,
		`a\\/b`,
		`&amp;`,
		`&amp;#92;/x`,
		`\/`,
		"&lt;br&gt;\n\n",
		`&#x5c;u0041`,
		"   ",
		`🏠`,
		"&" + strings.Repeat("amp;", 20) + "x",
	}
	for _, in := range inputs {
		once := String(in)
		assert.Equal(t, once, String(once), "input %q", in)
	}
}

func TestString_DeepEntityChain(t *testing.T) {
	in := "&" + strings.Repeat("amp;", 20) + "x"
	assert.Equal(t, "&x", String(in))
}

func TestHasContent(t *testing.T) {
	assert.True(t, HasContent("Jl. Contoh"))
	assert.True(t, HasContent("12"))
	assert.True(t, HasContent("東京"))
	assert.True(t, HasContent("Ⅻ"))
	assert.True(t, HasContent("²"))
	assert.False(t, HasContent(""))
	assert.False(t, HasContent(" - , ."))
}

func TestCandidate(t *testing.T) {
	prov := model.Provenance{URL: "https://x.example/", RecordID: "<urn:uuid:1>", Date: "2025-07-01T00:00:00Z"}
	c := model.AddressCandidate{
		Name:       jsonld.StringValue(" Loker\nTribun "),
		Street:     jsonld.StringValue("Jl. Contoh"),
		Locality:   jsonld.StringValue("Sukabumi"),
		PostalCode: jsonld.NumberValue("43111"),
		Country:    mustParse(t, `{"@type":"Country","name":"ID"}`),
		Provenance: prov,
	}
	a, err := Candidate(c)
	require.NoError(t, err)
	assert.Equal(t, model.Address{
		Name:       "Loker Tribun",
		Street:     "Jl. Contoh",
		Locality:   "Sukabumi",
		PostalCode: "43111",
		Country:    "ID",
		Provenance: prov,
	}, a)
}

func TestCandidate_Error(t *testing.T) {
	_, err := Candidate(model.AddressCandidate{Street: jsonld.BoolValue(true)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "street")
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name   string
		addr   model.Address
		ok     bool
		reason string
	}{
		{name: "street absent", addr: model.Address{Locality: "Berlin", PostalCode: "10115"}, reason: RejectNoStreet},
		{name: "street punctuation only", addr: model.Address{Street: "-", Locality: "Berlin"}, reason: RejectNoStreet},
		{name: "no locality or postcode", addr: model.Address{Street: "Main St 1", Country: "DE"}, reason: RejectNoLocality},
		{name: "street and locality", addr: model.Address{Street: "Main St 1", Locality: "Berlin"}, ok: true},
		{name: "street and postcode", addr: model.Address{Street: "Main St 1", PostalCode: "10115"}, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := Accept(tt.addr)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}
