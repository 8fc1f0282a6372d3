package model

import "github.com/sells-group/postalcrawl/internal/jsonld"

// AddressCandidate is a raw address found in a linked data block. Field values
// are kept as parsed JSON because schema.org allows objects, lists and numbers
// where a string is expected.
type AddressCandidate struct {
	Name       jsonld.Value
	Street     jsonld.Value
	Locality   jsonld.Value
	Region     jsonld.Value
	PostalCode jsonld.Value
	Country    jsonld.Value
	Provenance Provenance
}

// Address is a cleaned candidate. An empty field means the value is absent;
// cleaning never produces an empty string for a present value.
type Address struct {
	Name       string     `json:"name,omitempty"`
	Street     string     `json:"street,omitempty"`
	Locality   string     `json:"locality,omitempty"`
	Region     string     `json:"region,omitempty"`
	PostalCode string     `json:"postal_code,omitempty"`
	Country    string     `json:"country,omitempty"`
	Provenance Provenance `json:"provenance,omitzero"`
}

// IsEmpty reports whether every address field is absent.
func (a Address) IsEmpty() bool {
	return a.Name == "" && a.Street == "" && a.Locality == "" &&
		a.Region == "" && a.PostalCode == "" && a.Country == ""
}

// ResolvedAddress is the best match returned by the geocoding provider.
type ResolvedAddress struct {
	Longitude   float64 `json:"longitude"`
	Latitude    float64 `json:"latitude"`
	Name        string  `json:"name,omitempty"`
	HouseNumber string  `json:"housenumber,omitempty"`
	Street      string  `json:"street,omitempty"`
	Postcode    string  `json:"postcode,omitempty"`
	City        string  `json:"city,omitempty"`
	Locality    string  `json:"locality,omitempty"`
	District    string  `json:"district,omitempty"`
	State       string  `json:"state,omitempty"`
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	OSMID       int64   `json:"osm_id"`
	OSMType     string  `json:"osm_type"`
}

// ValidationResult pairs a candidate with its resolution. Resolved is nil when
// the provider had no match or the lookup failed.
type ValidationResult struct {
	Candidate Address
	Resolved  *ResolvedAddress
}

// Matched reports whether the provider returned an address.
func (r ValidationResult) Matched() bool {
	return r.Resolved != nil
}

// Record is the flattened output row handed to writers and stores.
type Record struct {
	URL      string           `json:"url"`
	RecordID string           `json:"warc_rec_id"`
	Date     string           `json:"warc_date"`
	Claimed  Address          `json:"claimed"`
	Resolved *ResolvedAddress `json:"resolved,omitempty"`
}

// NewRecord flattens a validation result into an output row.
func NewRecord(r ValidationResult) Record {
	claimed := r.Candidate
	prov := claimed.Provenance
	claimed.Provenance = Provenance{}
	return Record{
		URL:      prov.URL,
		RecordID: prov.RecordID,
		Date:     prov.Date,
		Claimed:  claimed,
		Resolved: r.Resolved,
	}
}
