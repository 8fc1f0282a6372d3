package sink

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/postalcrawl/internal/model"
)

func TestWriter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg", "00042.candidates.jsonl.gz")

	w, err := Create[model.Address](path)
	require.NoError(t, err)
	assert.False(t, Exists(path), "target appears only on close")

	in := []model.Address{
		{Name: "Loker Tribun", Street: "Jl. Merdeka 1", Locality: "Bandung",
			Provenance: model.Provenance{URL: "https://example.com/?a=1&b=2", RecordID: "<urn:uuid:1>"}},
		{Street: "Hauptstraße 5", Locality: "München", Country: "DE"},
	}
	for _, a := range in {
		require.NoError(t, w.Write(a))
	}
	assert.Equal(t, 2, w.Count())
	require.NoError(t, w.Close())
	assert.True(t, Exists(path))

	out, err := ReadAll[model.Address](path)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// Gzip stream of one JSON object per line, HTML characters unescaped.
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	raw, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"url":"https://example.com/?a=1&b=2"`)
}

func TestWriter_Abort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jsonl.gz")

	w, err := Create[int](path)
	require.NoError(t, err)
	require.NoError(t, w.Write(1))
	require.NoError(t, w.Abort())

	assert.False(t, Exists(path))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRead_PlainJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"street\":\"a\"}\n{\"street\":\"b\"}\n"), 0o644))

	out, err := ReadAll[model.Address](path)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[1].Street)
}

func TestRead_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	out, err := ReadAll[model.Address](path)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRead_DecodeErrorStops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"street\":\"a\"}\n{oops\n{\"street\":\"c\"}\n"), 0o644))

	var got []string
	var lastErr error
	for a, err := range Read[model.Address](path) {
		if err != nil {
			lastErr = err
			continue
		}
		got = append(got, a.Street)
	}
	assert.Equal(t, []string{"a"}, got)
	require.Error(t, lastErr)
	assert.Contains(t, lastErr.Error(), "value 2")
}

func TestRead_MissingFile(t *testing.T) {
	_, err := ReadAll[int](filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink: open")
}

func TestWriteJSON_ReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "00042.stats.json")
	in := map[string]int64{"warc/record_count": 10, "address/accepted": 2}

	require.NoError(t, WriteJSON(path, in))

	var out map[string]int64
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, in, out)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, Exists(dir), "directories do not count")
	assert.False(t, Exists(filepath.Join(dir, "nope")))
}
