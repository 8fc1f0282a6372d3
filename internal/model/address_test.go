package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress_IsEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, Address{}.IsEmpty())
	assert.True(t, Address{Provenance: Provenance{URL: "https://example.com"}}.IsEmpty())
	assert.False(t, Address{Country: "DE"}.IsEmpty())
}

func TestValidationResult_Matched(t *testing.T) {
	t.Parallel()

	assert.False(t, ValidationResult{}.Matched())
	assert.True(t, ValidationResult{Resolved: &ResolvedAddress{OSMID: 1}}.Matched())
}

func TestNewRecord_MovesProvenanceToTopLevel(t *testing.T) {
	t.Parallel()

	r := NewRecord(ValidationResult{
		Candidate: Address{
			Name:     "Loker Tribun",
			Street:   "Jl. Contoh",
			Locality: "Sukabumi",
			Provenance: Provenance{
				URL:      "https://lokertribun.example/",
				RecordID: "<urn:uuid:1>",
				Date:     "2025-06-12T11:28:40Z",
			},
		},
	})

	assert.Equal(t, "https://lokertribun.example/", r.URL)
	assert.Equal(t, "<urn:uuid:1>", r.RecordID)
	assert.Equal(t, "2025-06-12T11:28:40Z", r.Date)
	assert.Equal(t, "Sukabumi", r.Claimed.Locality)
	assert.Nil(t, r.Resolved)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"provenance"`)
	assert.NotContains(t, string(data), `"resolved"`)
}
