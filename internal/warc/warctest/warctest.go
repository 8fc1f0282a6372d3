// Package warctest builds small WARC archives for tests.
package warctest

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

// Record is a single archive entry to serialise.
type Record struct {
	Type    string
	URI     string
	ID      string
	Date    string
	Headers map[string]string // extra WARC headers
	Block   []byte            // raw content block
}

// Response builds an HTTP response record with the given content type and body.
func Response(uri, contentType, body string) Record {
	var block bytes.Buffer
	block.WriteString("HTTP/1.1 200 OK\r\n")
	if contentType != "" {
		fmt.Fprintf(&block, "Content-Type: %s\r\n", contentType)
	}
	fmt.Fprintf(&block, "Content-Length: %d\r\n\r\n", len(body))
	block.WriteString(body)
	return Record{Type: "response", URI: uri, Block: block.Bytes()}
}

// RawResponse builds a response record whose block is used verbatim.
func RawResponse(uri string, block []byte) Record {
	return Record{Type: "response", URI: uri, Block: block}
}

// Request builds an HTTP request record.
func Request(uri string) Record {
	block := fmt.Sprintf("GET / HTTP/1.1\r\nHost: %s\r\n\r\n", uri)
	return Record{Type: "request", URI: uri, Block: []byte(block)}
}

// Bytes encodes one record including its trailing separator.
func (r Record) Bytes(n int) []byte {
	id := r.ID
	if id == "" {
		id = fmt.Sprintf("<urn:uuid:00000000-0000-0000-0000-%012d>", n)
	}
	date := r.Date
	if date == "" {
		date = "2025-07-01T00:00:00Z"
	}
	var b bytes.Buffer
	b.WriteString("WARC/1.0\r\n")
	fmt.Fprintf(&b, "WARC-Type: %s\r\n", r.Type)
	fmt.Fprintf(&b, "WARC-Record-ID: %s\r\n", id)
	fmt.Fprintf(&b, "WARC-Date: %s\r\n", date)
	if r.URI != "" {
		fmt.Fprintf(&b, "WARC-Target-URI: %s\r\n", r.URI)
	}
	switch r.Type {
	case "response", "request", "revisit":
		b.WriteString("Content-Type: application/http; msgtype=" + r.Type + "\r\n")
	}
	for k, v := range r.Headers {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	fmt.Fprintf(&b, "Content-Length: %d\r\n\r\n", len(r.Block))
	b.Write(r.Block)
	b.WriteString("\r\n\r\n")
	return b.Bytes()
}

// Build serialises records as an uncompressed archive.
func Build(records ...Record) []byte {
	var b bytes.Buffer
	for i, r := range records {
		b.Write(r.Bytes(i + 1))
	}
	return b.Bytes()
}

// BuildGzip serialises records with one gzip member per record.
func BuildGzip(records ...Record) []byte {
	var b bytes.Buffer
	for i, r := range records {
		zw := gzip.NewWriter(&b)
		zw.Write(r.Bytes(i + 1)) //nolint:errcheck
		zw.Close()               //nolint:errcheck
	}
	return b.Bytes()
}
