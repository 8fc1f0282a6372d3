package extract

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/postalcrawl/internal/model"
	"github.com/sells-group/postalcrawl/internal/stats"
	"github.com/sells-group/postalcrawl/internal/warc"
)

// DefaultMaxBodySize caps how much of a response payload is decoded.
const DefaultMaxBodySize = 16 << 20

// Decoder turns a response record into UTF-8 text. It never fails: unknown
// charsets and invalid bytes degrade to lossy UTF-8.
type Decoder struct {
	stats       *stats.Counter
	maxBodySize int64
	sniff       bool
}

// NewDecoder creates a Decoder. When sniff is true a byte-order mark or
// <meta charset> is honoured if the Content-Type header names no charset.
func NewDecoder(counter *stats.Counter, maxBodySize int64, sniff bool) *Decoder {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &Decoder{stats: counter, maxBodySize: maxBodySize, sniff: sniff}
}

// Decode reads and decodes the payload of rec.
func (d *Decoder) Decode(rec *warc.Record) model.DecodedDocument {
	ct, _ := rec.ContentType()
	_, cs := ParseContentType(ct)
	if cs != "" {
		d.stats.Inc("response/charset/" + cs)
	} else {
		d.stats.Inc("response/charset/None")
	}

	raw, err := io.ReadAll(io.LimitReader(rec.Content(), d.maxBodySize+1))
	if err != nil {
		// Keep whatever arrived; a broken transfer encoding is not fatal.
		d.stats.Inc("error/response/read")
		zap.L().Debug("extract: read payload", zap.String("url", rec.TargetURI()), zap.Error(err))
	}
	if int64(len(raw)) > d.maxBodySize {
		raw = raw[:d.maxBodySize]
		d.stats.Inc("response/truncated")
	}

	if cs == "" && d.sniff {
		cs = d.sniffCharset(raw)
	}

	doc := model.DecodedDocument{
		Provenance: model.Provenance{
			URL:      rec.TargetURI(),
			RecordID: rec.ID(),
			Date:     rec.Date(),
		},
	}
	doc.Content, doc.Charset = d.decode(raw, cs)
	return doc
}

// Process implements Stage.
func (d *Decoder) Process(rec *warc.Record, emit func(model.DecodedDocument) bool) bool {
	return emit(d.Decode(rec))
}

func (d *Decoder) sniffCharset(raw []byte) string {
	head := raw
	if len(head) > 1024 {
		head = head[:1024]
	}
	_, name, certain := charset.DetermineEncoding(head, "text/html")
	// windows-1252 is the package's guess when nothing is declared.
	if !certain && (name == "windows-1252" || name == "utf-8") {
		return ""
	}
	d.stats.Inc("response/charset_sniffed/" + name)
	return name
}

func (d *Decoder) decode(raw []byte, cs string) (string, string) {
	if cs == "" || cs == "utf-8" || cs == "utf8" {
		return lossyUTF8(raw), "utf-8"
	}

	enc, err := htmlindex.Get(cs)
	if err != nil {
		d.stats.Inc("error/charset_unknown/" + cs)
		return lossyUTF8(raw), "utf-8"
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		d.stats.Inc("error/charset_decode/" + cs)
		return lossyUTF8(raw), "utf-8"
	}
	return lossyUTF8(out), cs
}

func lossyUTF8(b []byte) string {
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
