package geocode

import (
	"net/url"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/postalcrawl/internal/model"
)

func TestBuildQuery(t *testing.T) {
	q, err := BuildQuery(model.Address{
		Name:       "Loker Tribun",
		Street:     "Jl. Contoh 1",
		Locality:   "Sukabumi",
		Region:     "Jawa Barat",
		PostalCode: "43111",
		Country:    "ID",
	})
	require.NoError(t, err)
	assert.Equal(t, url.Values{
		"amenity":    {"Loker Tribun"},
		"street":     {"Jl. Contoh 1"},
		"city":       {"Sukabumi"},
		"state":      {"Jawa Barat"},
		"postalcode": {"43111"},
		"country":    {"ID"},
	}, q)
}

func TestBuildQuery_OmitsAbsentFields(t *testing.T) {
	q, err := BuildQuery(model.Address{Street: "Main St", PostalCode: "10115"})
	require.NoError(t, err)
	assert.Equal(t, url.Values{"street": {"Main St"}, "postalcode": {"10115"}}, q)

	q, err = BuildQuery(model.Address{})
	require.NoError(t, err)
	assert.Empty(t, q)
}

func TestBuildQuery_Malformed(t *testing.T) {
	for _, a := range []model.Address{
		{Street: "Main\x00St", Locality: "X"},
		{Street: "Main St", Locality: "Bad\xffUTF8"},
		{Street: "Tab\tSt", Locality: "X"},
	} {
		_, err := BuildQuery(a)
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrMalformedQuery))
	}
}

func TestSearchURL(t *testing.T) {
	raw := SearchURL("http://localhost:9020/", url.Values{"street": {"Jl. Contoh & Co"}})
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/search", u.Path)

	q := u.Query()
	assert.Equal(t, "geocodejson", q.Get("format"))
	assert.Equal(t, "1", q.Get("limit"))
	assert.Equal(t, "1", q.Get("addressdetails"))
	assert.Equal(t, "0", q.Get("namedetails"))
	assert.Equal(t, "0", q.Get("extratags"))
	assert.Equal(t, "address", q.Get("layer"))
	assert.Equal(t, "Jl. Contoh & Co", q.Get("street"))
	assert.False(t, strings.Contains(raw, "amenity"))
}

func TestCacheKey_Normalizes(t *testing.T) {
	a := cacheKey(url.Values{"street": {"Main St "}, "city": {"Berlin"}})
	b := cacheKey(url.Values{"city": {"BERLIN"}, "street": {"main st"}})
	c := cacheKey(url.Values{"city": {"Hamburg"}, "street": {"main st"}})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
