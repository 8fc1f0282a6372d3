package geocode

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/postalcrawl/internal/model"
)

// searchResponse is the geocodejson envelope returned by /search.
type searchResponse struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type     string `json:"type"`
	Geometry struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
	Properties struct {
		Geocoding geocodingProps `json:"geocoding"`
	} `json:"properties"`
}

type geocodingProps struct {
	Name        string `json:"name"`
	HouseNumber string `json:"housenumber"`
	Street      string `json:"street"`
	Postcode    string `json:"postcode"`
	City        string `json:"city"`
	Locality    string `json:"locality"`
	District    string `json:"district"`
	State       string `json:"state"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	OSMID       int64  `json:"osm_id"`
	OSMType     string `json:"osm_type"`
}

// parseSearch returns the first feature of a geocodejson body, or nil when
// there are no features.
func parseSearch(body []byte) (*model.ResolvedAddress, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}
	if len(resp.Features) == 0 {
		return nil, nil
	}

	f := resp.Features[0]
	if len(f.Geometry.Coordinates) < 2 {
		return nil, eris.New("geocode: feature without coordinates")
	}
	g := f.Properties.Geocoding
	return &model.ResolvedAddress{
		Longitude:   f.Geometry.Coordinates[0],
		Latitude:    f.Geometry.Coordinates[1],
		Name:        g.Name,
		HouseNumber: g.HouseNumber,
		Street:      g.Street,
		Postcode:    g.Postcode,
		City:        g.City,
		Locality:    g.Locality,
		District:    g.District,
		State:       g.State,
		Country:     g.Country,
		CountryCode: g.CountryCode,
		OSMID:       g.OSMID,
		OSMType:     g.OSMType,
	}, nil
}
