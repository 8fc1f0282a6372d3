// Package warc streams records out of WARC web-archive containers, plain or
// gzip-framed, without buffering the archive.
package warc

import (
	"bufio"
	"errors"
	"io"
	"iter"
	"net/http"
	"net/textproto"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rotisserie/eris"

	"github.com/sells-group/postalcrawl/internal/stats"
)

const bufferSize = 64 << 10

// Reader yields records from a WARC stream in order. It is not restartable.
type Reader struct {
	br      *bufio.Reader
	current *io.LimitedReader
	count   int
	stats   *stats.Counter
	closers []io.Closer
	err     error
}

// NewReader wraps r, transparently decompressing gzip input (including the
// one-member-per-record framing used by Common Crawl).
func NewReader(r io.Reader, counter *stats.Counter) (*Reader, error) {
	br := bufio.NewReaderSize(r, bufferSize)
	rd := &Reader{br: br, stats: counter}

	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, eris.Wrap(err, "warc: peek stream")
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, &ArchiveFormatError{Record: 1, Reason: "invalid gzip header", Err: err}
		}
		rd.br = bufio.NewReaderSize(gz, bufferSize)
		rd.closers = append(rd.closers, gz)
	}
	return rd, nil
}

// Open opens a local archive file.
func Open(path string, counter *stats.Counter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "warc: open %s", path)
	}
	rd, err := NewReader(f, counter)
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, err
	}
	rd.closers = append(rd.closers, f)
	return rd, nil
}

// Close releases the decompressor and any file opened by Open.
func (r *Reader) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}

// Next returns the next record, or io.EOF when the stream ends cleanly.
// Any other error is terminal and is returned again by later calls.
func (r *Reader) Next() (*Record, error) {
	if r.err != nil {
		return nil, r.err
	}
	rec, err := r.next()
	if err != nil {
		r.err = err
		return nil, err
	}
	r.stats.Inc("warc/record_count")
	return rec, nil
}

// All iterates the remaining records. A terminal error is yielded once as
// the final element.
func (r *Reader) All() iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		for {
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (r *Reader) formatErr(reason string, err error) error {
	return &ArchiveFormatError{Record: r.count, Reason: reason, Err: err}
}

func (r *Reader) next() (*Record, error) {
	if r.current != nil {
		if _, err := io.Copy(io.Discard, r.current); err != nil {
			return nil, r.formatErr("skip record block", err)
		}
		if r.current.N > 0 {
			return nil, r.formatErr("truncated record block", io.ErrUnexpectedEOF)
		}
		r.current = nil
	}

	r.count++

	// Records are separated by CRLF CRLF; tolerate any number of blank lines.
	var version string
	for {
		line, err := readLine(r.br)
		if line != "" {
			version = line
			break
		}
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, r.formatErr("read version line", err)
		}
	}
	if !strings.HasPrefix(version, "WARC/") {
		return nil, r.formatErr("missing WARC version line", eris.Errorf("got %q", truncate(version, 40)))
	}

	header, err := readHeader(r.br)
	if err != nil {
		return nil, r.formatErr("read header block", err)
	}

	lengthStr := header.Get("Content-Length")
	length, err := strconv.ParseInt(strings.TrimSpace(lengthStr), 10, 64)
	if err != nil || length < 0 {
		return nil, r.formatErr("invalid Content-Length", eris.Errorf("got %q", lengthStr))
	}

	r.current = &io.LimitedReader{R: r.br, N: length}
	rec := &Record{
		Type:   strings.ToLower(strings.TrimSpace(header.Get("WARC-Type"))),
		Header: header,
	}

	payload := bufio.NewReader(r.current)
	rec.payload = payload

	if strings.HasPrefix(strings.ToLower(header.Get("Content-Type")), "application/http") {
		switch rec.Type {
		case TypeResponse, TypeRevisit:
			r.parseHTTPResponse(rec, payload)
		case TypeRequest:
			r.parseHTTPRequest(rec, payload)
		}
	}
	return rec, nil
}

func (r *Reader) parseHTTPResponse(rec *Record, payload *bufio.Reader) {
	status, err := readLine(payload)
	if err != nil && status == "" {
		r.stats.Inc("warc/http/bad_status_line")
		return
	}
	parts := strings.SplitN(status, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		r.stats.Inc("warc/http/bad_status_line")
		return
	}
	if code, err := strconv.Atoi(parts[1]); err == nil {
		rec.StatusCode = code
	}
	h, err := readHeader(payload)
	if err != nil {
		r.stats.Inc("warc/http/bad_header")
		return
	}
	rec.HTTPHeader = http.Header(h)
}

func (r *Reader) parseHTTPRequest(rec *Record, payload *bufio.Reader) {
	if _, err := readLine(payload); err != nil {
		return
	}
	if h, err := readHeader(payload); err == nil {
		rec.HTTPHeader = http.Header(h)
	}
}

// readLine reads one line without its CRLF or LF terminator.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	return line, err
}

// readHeader reads "Name: value" lines up to the first blank line. Folded
// continuation lines are appended to the previous value and lines without a
// colon are skipped, matching how real crawls record broken servers.
func readHeader(br *bufio.Reader) (textproto.MIMEHeader, error) {
	h := make(textproto.MIMEHeader)
	var lastKey string
	for {
		line, err := readLine(br)
		if line == "" {
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			if errors.Is(err, io.EOF) {
				return h, io.ErrUnexpectedEOF
			}
			return h, nil
		}
		if (line[0] == ' ' || line[0] == '\t') && lastKey != "" {
			vals := h[lastKey]
			vals[len(vals)-1] += " " + strings.TrimSpace(line)
		} else if i := strings.IndexByte(line, ':'); i > 0 {
			lastKey = textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(line[:i]))
			h[lastKey] = append(h[lastKey], strings.TrimSpace(line[i+1:]))
		}
		if err != nil {
			return h, io.ErrUnexpectedEOF
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
