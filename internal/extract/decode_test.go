package extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/postalcrawl/internal/stats"
	"github.com/sells-group/postalcrawl/internal/warc/warctest"
)

func TestDecoder_DeclaredCharset(t *testing.T) {
	counter := stats.NewCounter()
	d := NewDecoder(counter, 0, false)

	rec := firstRecord(t, warctest.Response("https://a/", "text/html; charset=ISO-8859-1", "M\xfcnchen"))
	doc := d.Decode(rec)

	assert.Equal(t, "München", doc.Content)
	assert.Equal(t, "iso-8859-1", doc.Charset)
	assert.Equal(t, "https://a/", doc.Provenance.URL)
	assert.NotEmpty(t, doc.Provenance.RecordID)
	assert.Equal(t, "2025-07-01T00:00:00Z", doc.Provenance.Date)
	assert.Equal(t, int64(1), counter.Get("response/charset/iso-8859-1"))
}

func TestDecoder_DefaultsToUTF8(t *testing.T) {
	counter := stats.NewCounter()
	d := NewDecoder(counter, 0, false)

	doc := d.Decode(firstRecord(t, warctest.Response("https://a/", "text/html", "héllo")))
	assert.Equal(t, "héllo", doc.Content)
	assert.Equal(t, "utf-8", doc.Charset)
	assert.Equal(t, int64(1), counter.Get("response/charset/None"))
}

func TestDecoder_UnknownCharsetFallsBack(t *testing.T) {
	counter := stats.NewCounter()
	d := NewDecoder(counter, 0, false)

	doc := d.Decode(firstRecord(t, warctest.Response("https://a/", "text/html; charset=x-bogus", "ok \xff")))
	assert.True(t, utf8.ValidString(doc.Content))
	assert.Equal(t, "ok �", doc.Content)
	assert.Equal(t, "utf-8", doc.Charset)
	assert.Equal(t, int64(1), counter.Get("error/charset_unknown/x-bogus"))
}

func TestDecoder_InvalidBytesReplaced(t *testing.T) {
	d := NewDecoder(nil, 0, false)
	doc := d.Decode(firstRecord(t, warctest.Response("https://a/", "text/html; charset=utf-8", "a\xc3\x28b")))
	assert.True(t, utf8.ValidString(doc.Content))
	assert.Contains(t, doc.Content, "�")
}

func TestDecoder_SniffMetaCharset(t *testing.T) {
	body := `<html><head><meta charset="iso-8859-2"></head><body>` + "\xb1" + `</body></html>`

	sniffing := NewDecoder(nil, 0, true)
	doc := sniffing.Decode(firstRecord(t, warctest.Response("https://a/", "text/html", body)))
	assert.Equal(t, "iso-8859-2", doc.Charset)
	assert.Contains(t, doc.Content, "ą")

	plain := NewDecoder(nil, 0, false)
	doc = plain.Decode(firstRecord(t, warctest.Response("https://a/", "text/html", body)))
	assert.Equal(t, "utf-8", doc.Charset)
}

func TestDecoder_Truncates(t *testing.T) {
	counter := stats.NewCounter()
	d := NewDecoder(counter, 8, false)
	doc := d.Decode(firstRecord(t, warctest.Response("https://a/", "text/html", strings.Repeat("a", 20))))
	assert.Len(t, doc.Content, 8)
	assert.Equal(t, int64(1), counter.Get("response/truncated"))
}
