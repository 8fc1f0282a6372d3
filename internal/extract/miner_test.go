package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/postalcrawl/internal/model"
	"github.com/sells-group/postalcrawl/internal/stats"
)

func mine(t *testing.T, m *Miner, text string) []model.AddressCandidate {
	t.Helper()
	var out []model.AddressCandidate
	m.Process(model.LinkedDataBlock{Text: text, Provenance: model.Provenance{URL: "https://a/"}},
		func(c model.AddressCandidate) bool {
			out = append(out, c)
			return true
		})
	return out
}

func str(t *testing.T, c model.AddressCandidate, field string) string {
	t.Helper()
	var s string
	switch field {
	case "name":
		s, _ = c.Name.Str()
	case "street":
		s, _ = c.Street.Str()
	case "locality":
		s, _ = c.Locality.Str()
	case "region":
		s, _ = c.Region.Str()
	case "country":
		s, _ = c.Country.Str()
	}
	return s
}

func TestMiner_SingleAddress(t *testing.T) {
	counter := stats.NewCounter()
	m := NewMiner(counter, 0, 0)

	got := mine(t, m, `{"name":"Loker Tribun","address":{"@type":"PostalAddress",
		"streetAddress":"Jl. Contoh","addressLocality":"Sukabumi","addressRegion":"Jawa Barat",
		"postalCode":43111,"addressCountry":{"@type":"Country","name":"ID"}}}`)
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, "Loker Tribun", str(t, c, "name"))
	assert.Equal(t, "Jl. Contoh", str(t, c, "street"))
	assert.Equal(t, "Sukabumi", str(t, c, "locality"))
	assert.Equal(t, "Jawa Barat", str(t, c, "region"))
	n, ok := c.PostalCode.Number()
	require.True(t, ok)
	assert.Equal(t, "43111", n.String())
	country, _ := c.Country.Get("name").Str()
	assert.Equal(t, "ID", country)
	assert.Equal(t, "https://a/", c.Provenance.URL)
	assert.Equal(t, int64(1), counter.Get("postal_address/extracted"))
}

func TestMiner_NCandidates(t *testing.T) {
	for _, n := range []int{0, 1, 3, 10} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			items := make([]string, n)
			for i := range items {
				items[i] = fmt.Sprintf(`{"name":"shop %d","address":{"@type":"PostalAddress","streetAddress":"Street %d"}}`, i, i)
			}
			doc := `{"@graph":[` + strings.Join(items, ",") + `,{"@type":"WebSite"}]}`
			if n == 0 {
				doc = `{"@graph":[{"@type":"WebSite"}]}`
			}

			got := mine(t, NewMiner(nil, 0, 0), doc)
			require.Len(t, got, n)
			for i, c := range got {
				assert.Equal(t, fmt.Sprintf("shop %d", i), str(t, c, "name"))
				assert.Equal(t, fmt.Sprintf("Street %d", i), str(t, c, "street"))
			}
		})
	}
}

func TestMiner_PreOrderNested(t *testing.T) {
	doc := `{"name":"outer","address":{"@type":"PostalAddress","streetAddress":"A"},
		"department":[{"name":"inner","address":{"@type":"PostalAddress","streetAddress":"B"}}]}`
	got := mine(t, NewMiner(nil, 0, 0), doc)
	require.Len(t, got, 2)
	assert.Equal(t, "outer", str(t, got[0], "name"))
	assert.Equal(t, "inner", str(t, got[1], "name"))
}

func TestMiner_LegalNameFallback(t *testing.T) {
	got := mine(t, NewMiner(nil, 0, 0),
		`{"name":"","legalName":"PT Contoh","address":{"@type":"PostalAddress","streetAddress":"A"}}`)
	require.Len(t, got, 1)
	assert.Equal(t, "PT Contoh", str(t, got[0], "name"))

	got = mine(t, NewMiner(nil, 0, 0), `{"address":{"@type":"PostalAddress","streetAddress":"A"}}`)
	require.Len(t, got, 1)
	assert.True(t, got[0].Name.IsAbsent())
}

func TestMiner_IgnoresOtherShapes(t *testing.T) {
	docs := []string{
		`{"address":"Jl. Contoh 1"}`,
		`{"address":{"@type":"Place","streetAddress":"A"}}`,
		`{"address":{"@type":["PostalAddress"],"streetAddress":"A"}}`,
		`{"location":{"@type":"PostalAddress","streetAddress":"A"}}`,
		`[1, "PostalAddress", null]`,
	}
	for _, doc := range docs {
		assert.Empty(t, mine(t, NewMiner(nil, 0, 0), doc), doc)
	}
}

func TestMiner_DecodeError(t *testing.T) {
	counter := stats.NewCounter()
	assert.Empty(t, mine(t, NewMiner(counter, 0, 0), `{"address": {"@type": "PostalAddress"`))
	assert.Equal(t, int64(1), counter.Get("error/json/decode_error"))
}

func TestMiner_DepthLimits(t *testing.T) {
	deep := strings.Repeat(`{"x":`, 20) +
		`{"address":{"@type":"PostalAddress","streetAddress":"A"}}` +
		strings.Repeat(`}`, 20)

	counter := stats.NewCounter()
	assert.Empty(t, mine(t, NewMiner(counter, 0, 5), deep))
	assert.Equal(t, int64(1), counter.Get("error/json/walk_truncated"))

	counter = stats.NewCounter()
	assert.Empty(t, mine(t, NewMiner(counter, 10, 0), deep))
	assert.Equal(t, int64(1), counter.Get("error/json/too_deep"))

	assert.Len(t, mine(t, NewMiner(nil, 0, 0), deep), 1)
}
