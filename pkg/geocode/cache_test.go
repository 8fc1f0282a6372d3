package geocode

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/postalcrawl/internal/model"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Hour)
	c.now = func() time.Time { return now }

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "k", &model.ResolvedAddress{City: "Berlin"}))
	require.NoError(t, c.Set(ctx, "none", nil))

	res, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Berlin", res.City)

	res, found, _ = c.Get(ctx, "none")
	assert.True(t, found)
	assert.Nil(t, res)

	now = now.Add(2 * time.Hour)
	_, found, _ = c.Get(ctx, "k")
	assert.False(t, found)
}

type fakeGeocodeStore struct {
	maxAge time.Duration
	data   map[string]*model.ResolvedAddress
}

func (f *fakeGeocodeStore) GetCachedGeocode(_ context.Context, key string, maxAge time.Duration) (*model.ResolvedAddress, bool, error) {
	f.maxAge = maxAge
	res, ok := f.data[key]
	return res, ok, nil
}

func (f *fakeGeocodeStore) SetCachedGeocode(_ context.Context, key string, res *model.ResolvedAddress) error {
	f.data[key] = res
	return nil
}

func TestStoreCache(t *testing.T) {
	s := &fakeGeocodeStore{data: map[string]*model.ResolvedAddress{}}
	c := NewStoreCache(s, 24*time.Hour)

	require.NoError(t, c.Set(context.Background(), "k", &model.ResolvedAddress{OSMID: 1}))
	res, found, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1), res.OSMID)
	assert.Equal(t, 24*time.Hour, s.maxAge)
}
