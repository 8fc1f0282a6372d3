package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/postalcrawl/internal/model"
	"github.com/sells-group/postalcrawl/internal/resilience"
	"github.com/sells-group/postalcrawl/internal/store"
	"github.com/sells-group/postalcrawl/internal/warc/warctest"
)

// addressPage renders a page with one PostalAddress block.
func addressPage(name, street, locality string) string {
	return `<html><head><script type="application/ld+json">{"name":"` + name +
		`","address":{"@type":"PostalAddress","streetAddress":"` + street +
		`","addressLocality":"` + locality + `"}}</script></head></html>`
}

// writeArchive writes a gzip-member WARC file into dir.
func writeArchive(t *testing.T, dir, name string, records ...warctest.Record) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, warctest.BuildGzip(records...), 0o644))
	return path
}

// twoPageArchive holds one address in Sukabumi and one in Bogor.
func twoPageArchive(t *testing.T, dir, name string) string {
	return writeArchive(t, dir, name,
		warctest.Request("https://a.example/"),
		warctest.Response("https://a.example/", "text/html", addressPage("Loker Tribun", "Jl. Contoh", "Sukabumi")),
		warctest.Response("https://b.example/", "text/html; charset=utf-8", addressPage("Toko B", "Jl. Raya 2", "Bogor")),
		warctest.Response("https://c.example/logo.png", "image/png", "\x89PNG"),
	)
}

// fakeResolver matches by locality. Localities in fail return a transient error.
type fakeResolver struct {
	mu      sync.Mutex
	matches map[string]*model.ResolvedAddress
	fail    map[string]bool
	calls   int
}

func (f *fakeResolver) Resolve(_ context.Context, a model.Address) (*model.ResolvedAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[a.Locality] {
		return nil, resilience.NewTransientError(errors.New("nominatim: 503"), 503)
	}
	return f.matches[a.Locality], nil
}

func sukabumiResolver() *fakeResolver {
	return &fakeResolver{matches: map[string]*model.ResolvedAddress{
		"Sukabumi": {Longitude: 106.93, Latitude: -6.92, City: "Sukabumi", CountryCode: "id"},
	}}
}

func newSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}
