// Package fetcher streams remote archive files over HTTP.
package fetcher

import (
	"context"
	"io"
)

// Fetcher opens remote resources for streaming reads.
type Fetcher interface {
	// Download fetches the URL and returns the response body. The body may
	// transparently resume after a dropped connection.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}
