package geocode

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/postalcrawl/internal/model"
)

// ErrMalformedQuery is returned for candidates whose fields cannot be put in
// a request URL. Such candidates are skipped, never retried.
var ErrMalformedQuery = eris.New("geocode: malformed query")

// searchParams are sent with every search and shape the response.
var searchParams = url.Values{
	"format":         {"geocodejson"},
	"limit":          {"1"},
	"addressdetails": {"1"},
	"namedetails":    {"0"},
	"extratags":      {"0"},
	"layer":          {"address"},
}

// BuildQuery maps an address onto Nominatim structured-search parameters.
// Absent fields are omitted; an address with no fields yields an empty set.
func BuildQuery(a model.Address) (url.Values, error) {
	q := url.Values{}
	for _, f := range []struct{ param, value string }{
		{"amenity", a.Name},
		{"street", a.Street},
		{"city", a.Locality},
		{"state", a.Region},
		{"country", a.Country},
		{"postalcode", a.PostalCode},
	} {
		if f.value == "" {
			continue
		}
		if !utf8.ValidString(f.value) || strings.IndexFunc(f.value, unicode.IsControl) >= 0 {
			return nil, eris.Wrapf(ErrMalformedQuery, "field %s", f.param)
		}
		q.Set(f.param, f.value)
	}
	return q, nil
}

// SearchURL returns the full search URL for q.
func SearchURL(baseURL string, q url.Values) string {
	params := url.Values{}
	for k, v := range searchParams {
		params[k] = v
	}
	for k, v := range q {
		params[k] = v
	}
	return strings.TrimRight(baseURL, "/") + "/search?" + params.Encode()
}

// cacheKey returns the SHA-256 hex of the normalized query.
func cacheKey(q url.Values) string {
	norm := url.Values{}
	for k, v := range q {
		for _, s := range v {
			norm.Add(k, strings.ToLower(strings.TrimSpace(s)))
		}
	}
	h := sha256.Sum256([]byte(norm.Encode()))
	return hex.EncodeToString(h[:])
}
