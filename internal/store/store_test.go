package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/postalcrawl/internal/model"
)

func sampleRecord() model.Record {
	return model.Record{
		URL:      "https://example.com/kontakt",
		RecordID: "<urn:uuid:00000000-0000-0000-0000-000000000001>",
		Date:     "2025-07-01T00:00:00Z",
		Claimed: model.Address{
			Name:       "Loker Tribun",
			Street:     "Jl. Merdeka 1",
			Locality:   "Bandung",
			PostalCode: "40111",
			Country:    "ID",
		},
	}
}

func TestRecordKey(t *testing.T) {
	a := sampleRecord()
	b := sampleRecord()
	assert.Equal(t, RecordKey(a), RecordKey(b))
	assert.Len(t, RecordKey(a), 64)

	b.Resolved = &model.ResolvedAddress{City: "Bandung"}
	assert.Equal(t, RecordKey(a), RecordKey(b), "resolution does not change identity")

	b.Claimed.Street = "Jl. Merdeka 2"
	assert.NotEqual(t, RecordKey(a), RecordKey(b))

	c := sampleRecord()
	c.RecordID = "<urn:uuid:other>"
	assert.NotEqual(t, RecordKey(a), RecordKey(c))
}

func TestLocation_RoundTrip(t *testing.T) {
	data, err := EncodeLocation(&model.ResolvedAddress{Longitude: 107.6098, Latitude: -6.9147})
	require.NoError(t, err)
	require.NotEmpty(t, data)

	lon, lat, err := DecodeLocation(data)
	require.NoError(t, err)
	assert.InDelta(t, 107.6098, lon, 1e-9)
	assert.InDelta(t, -6.9147, lat, 1e-9)
}

func TestLocation_Miss(t *testing.T) {
	data, err := EncodeLocation(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	_, _, err = DecodeLocation([]byte{0x01})
	assert.Error(t, err)
}

func TestOpen_None(t *testing.T) {
	for _, driver := range []string{"", DriverNone} {
		s, err := Open(context.Background(), driver, "", nil)
		require.NoError(t, err)
		assert.Nil(t, s)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "", nil)
	assert.ErrorContains(t, err, `unknown driver "mysql"`)
}

func TestOpen_SQLiteMigrates(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	run, err := s.CreateRun(ctx, "CC-MAIN-2025-30/00042")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
}
