package geocode

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sells-group/postalcrawl/internal/resilience"
)

const emptyResponse = `{"type":"FeatureCollection","geocoding":{"version":"0.1.0"},"features":[]}`

func featureResponse(name string, lon, lat float64) string {
	return fmt.Sprintf(`{
  "type": "FeatureCollection",
  "geocoding": {"version": "0.1.0", "attribution": "OSM", "licence": "ODbL", "query": ""},
  "features": [{
    "type": "Feature",
    "properties": {"geocoding": {
      "place_id": 1, "osm_type": "way", "osm_id": 4242, "osm_key": "highway", "osm_value": "residential",
      "type": "street", "label": "x", "name": %q, "housenumber": "12", "street": "Jalan Contoh",
      "postcode": "43111", "city": "Sukabumi", "locality": "Cikole", "district": "Cikole",
      "state": "Jawa Barat", "country": "Indonesia", "country_code": "id",
      "admin": {"level4": "Jawa Barat"}
    }},
    "geometry": {"type": "Point", "coordinates": [%v, %v]}
  }]
}`, name, lon, lat)
}

func fastConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Retry = resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
	return cfg
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}
