package warc

import (
	"bufio"
	"io"
	"net/http"
	"net/http/httputil"
	"net/textproto"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// Record types defined by WARC 1.0/1.1.
const (
	TypeWarcinfo     = "warcinfo"
	TypeResponse     = "response"
	TypeResource     = "resource"
	TypeRequest      = "request"
	TypeMetadata     = "metadata"
	TypeRevisit      = "revisit"
	TypeConversion   = "conversion"
	TypeContinuation = "continuation"
)

// Record is one archive entry. Its payload is only readable until the next
// call to Reader.Next.
type Record struct {
	Type       string
	Header     textproto.MIMEHeader
	HTTPHeader http.Header // nil unless the block is a parsable HTTP message
	StatusCode int

	payload *bufio.Reader
}

// TargetURI returns the WARC-Target-URI header.
func (r *Record) TargetURI() string { return r.Header.Get("WARC-Target-URI") }

// ID returns the WARC-Record-ID header.
func (r *Record) ID() string { return r.Header.Get("WARC-Record-ID") }

// Date returns the WARC-Date header.
func (r *Record) Date() string { return r.Header.Get("WARC-Date") }

// ContentType returns the Content-Type of the embedded HTTP message, if any.
func (r *Record) ContentType() (string, bool) {
	if r.HTTPHeader == nil {
		return "", false
	}
	vals := r.HTTPHeader.Values("Content-Type")
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// Content returns the payload with HTTP transfer and content encodings
// removed. Encodings that cannot be undone are passed through raw.
func (r *Record) Content() io.Reader {
	if r.payload == nil {
		return strings.NewReader("")
	}
	var body io.Reader = r.payload
	if r.HTTPHeader == nil {
		return body
	}

	if hasToken(r.HTTPHeader.Values("Transfer-Encoding"), "chunked") {
		body = bufio.NewReader(httputil.NewChunkedReader(body))
	}

	br, ok := body.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(body)
	}
	switch {
	case hasToken(r.HTTPHeader.Values("Content-Encoding"), "gzip"):
		if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
			if gz, err := gzip.NewReader(br); err == nil {
				return gz
			}
		}
	case hasToken(r.HTTPHeader.Values("Content-Encoding"), "deflate"):
		return flate.NewReader(br)
	}
	return br
}

func hasToken(values []string, token string) bool {
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
