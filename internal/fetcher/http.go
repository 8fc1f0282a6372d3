package fetcher

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/postalcrawl/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	// Timeout bounds connection setup and response headers. Body reads are
	// bounded only by the request context since archives take minutes to stream.
	Timeout    time.Duration
	MaxRetries int
	Rate       rate.Limit // requests per second; 0 uses 2
	Burst      int
	MaxResumes int // reconnects per download after a dropped body; 0 uses 5, negative disables
}

// AdaptiveLimiter wraps a rate.Limiter that backs off when the server throttles.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 or 503 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnThrottle halves the rate.
func (a *AdaptiveLimiter) OnThrottle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("fetcher: reducing request rate after throttling",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// StatusError is a non-2xx response that was not retried or ran out of retries.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return "fetcher: unexpected status " + strconv.Itoa(e.Code) + " from " + e.URL
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithRetryConfig replaces the retry policy derived from HTTPOptions.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(f *HTTPFetcher) { f.retry = cfg }
}

// HTTPFetcher implements Fetcher using net/http with retry, adaptive rate
// limiting and ranged resumption.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *AdaptiveLimiter
	retry   resilience.RetryConfig
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions, options ...Option) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "postalcrawl/1.0"
	}
	if opts.Rate == 0 {
		opts.Rate = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.MaxResumes == 0 {
		opts.MaxResumes = 5
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       20,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
		TLSHandshakeTimeout:   opts.Timeout,
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = opts.MaxRetries
	retry.MaxBackoff = 30 * time.Second
	f := &HTTPFetcher{
		client:  &http.Client{Transport: transport},
		opts:    opts,
		limiter: NewAdaptiveLimiter(opts.Rate, opts.Burst),
		retry:   retry,
	}
	for _, o := range options {
		o(f)
	}
	if f.retry.OnRetry == nil {
		f.retry.OnRetry = resilience.RetryLogger("fetcher", "download")
	}
	return f
}

// Limiter exposes the shared request limiter.
func (f *HTTPFetcher) Limiter() *AdaptiveLimiter {
	return f.limiter
}

// get issues a GET for url starting at byte offset, retrying transient failures.
func (f *HTTPFetcher) get(ctx context.Context, url string, offset int64) (*http.Response, error) {
	return resilience.DoVal(ctx, f.retry, func(ctx context.Context) (*http.Response, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)
		if offset > 0 {
			req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
		}

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, resilience.NewTransientError(eris.Wrap(err, "fetcher: request"), 0)
		}

		switch {
		case offset > 0 && resp.StatusCode == http.StatusPartialContent,
			offset == 0 && resp.StatusCode == http.StatusOK:
			f.limiter.OnSuccess()
			return resp, nil
		case offset > 0 && resp.StatusCode == http.StatusOK:
			_ = resp.Body.Close()
			return nil, eris.Errorf("fetcher: %s ignored range request", url)
		}

		_ = resp.Body.Close()
		statusErr := &StatusError{URL: url, Code: resp.StatusCode}
		if !resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, statusErr
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			f.limiter.OnThrottle()
		}
		te := resilience.NewTransientError(statusErr, resp.StatusCode)
		te.RetryAfter = resilience.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return nil, te
	})
}

// Download fetches the URL and returns the response body. If the connection
// drops mid-body, the body reconnects with a Range request and continues.
func (f *HTTPFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := f.get(ctx, url, 0)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: download %s", url)
	}
	return &resumingBody{ctx: ctx, f: f, url: url, body: resp.Body}, nil
}

type resumingBody struct {
	ctx     context.Context
	f       *HTTPFetcher
	url     string
	body    io.ReadCloser
	offset  int64
	resumes int
}

func (b *resumingBody) Read(p []byte) (int, error) {
	for {
		n, err := b.body.Read(p)
		b.offset += int64(n)
		if err == nil || err == io.EOF || !b.canResume() {
			return n, err
		}

		zap.L().Warn("fetcher: body read failed, resuming",
			zap.String("url", b.url),
			zap.Int64("offset", b.offset),
			zap.Int("resume", b.resumes+1),
			zap.Error(err),
		)
		_ = b.body.Close()
		resp, rerr := b.f.get(b.ctx, b.url, b.offset)
		if rerr != nil {
			b.body = errReader{rerr}
			return n, eris.Wrapf(rerr, "fetcher: resume %s at %d", b.url, b.offset)
		}
		b.body = resp.Body
		b.resumes++
		if n > 0 {
			return n, nil
		}
	}
}

func (b *resumingBody) canResume() bool {
	return b.resumes < b.f.opts.MaxResumes && b.ctx.Err() == nil
}

func (b *resumingBody) Close() error {
	return b.body.Close()
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
func (r errReader) Close() error             { return nil }
