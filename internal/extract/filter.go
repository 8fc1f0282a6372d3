package extract

import (
	"mime"
	"strings"

	"github.com/sells-group/postalcrawl/internal/stats"
	"github.com/sells-group/postalcrawl/internal/warc"
)

// Filter passes HTTP response records whose media type mentions html or
// xml. Everything else is dropped and counted.
type Filter struct {
	stats *stats.Counter
}

// NewFilter creates a Filter reporting to counter.
func NewFilter(counter *stats.Counter) *Filter {
	return &Filter{stats: counter}
}

// Accept reports whether rec should be decoded.
func (f *Filter) Accept(rec *warc.Record) bool {
	if rec.Type != warc.TypeResponse {
		f.stats.Inc("warc/type/" + rec.Type)
		return false
	}
	f.stats.Inc("warc/response")

	ct, ok := rec.ContentType()
	if !ok {
		f.stats.Inc("warc/content_type/None")
		return false
	}
	mediaType, _ := ParseContentType(ct)
	f.stats.Inc("warc/content_type/" + mediaType)

	if !strings.Contains(mediaType, "html") && !strings.Contains(mediaType, "xml") {
		return false
	}
	f.stats.Inc("warc/html_response")
	return true
}

// Process implements Stage.
func (f *Filter) Process(rec *warc.Record, emit func(*warc.Record) bool) bool {
	if !f.Accept(rec) {
		return true
	}
	return emit(rec)
}

// ParseContentType returns the lower-cased media type and charset parameter
// of a Content-Type header. Malformed headers are split by hand so a broken
// parameter list still yields a media type.
func ParseContentType(ct string) (mediaType, charset string) {
	mt, params, err := mime.ParseMediaType(ct)
	if err != nil {
		parts := strings.Split(ct, ";")
		mt = parts[0]
		params = make(map[string]string)
		for _, p := range parts[1:] {
			k, v, ok := strings.Cut(p, "=")
			if !ok {
				continue
			}
			params[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}
	mediaType = strings.ToLower(strings.TrimSpace(mt))
	charset = strings.ToLower(strings.Trim(strings.TrimSpace(params["charset"]), `"'`))
	return mediaType, charset
}
