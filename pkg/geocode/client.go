// Package geocode resolves address candidates against a Nominatim server.
package geocode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/sells-group/postalcrawl/internal/model"
	"github.com/sells-group/postalcrawl/internal/resilience"
	"github.com/sells-group/postalcrawl/internal/stats"
)

const maxResponseSize = 1 << 20

// StatusError is a non-2xx answer from the provider.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geocode: nominatim returned status %d", e.Code)
}

// Config configures a Client.
type Config struct {
	BaseURL       string
	MaxConcurrent int           // requests in flight across all callers
	RateLimit     float64       // requests per second, 0 = unlimited
	Timeout       time.Duration // per HTTP attempt
	UserAgent     string
	Retry         resilience.RetryConfig
	Circuit       *resilience.CircuitBreakerConfig // nil disables the breaker
}

// DefaultConfig targets a local Nominatim with five concurrent requests.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:9020",
		MaxConcurrent: 5,
		Timeout:       30 * time.Second,
		UserAgent:     "postalcrawl/1.0",
		Retry:         resilience.DefaultRetryConfig(),
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCache enables result caching.
func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithStats reports request outcomes to counter.
func WithStats(counter *stats.Counter) Option {
	return func(c *Client) { c.stats = counter }
}

// Client queries Nominatim's structured search. It is safe for concurrent
// use; the concurrency cap and rate limit apply to all callers together.
type Client struct {
	cfg     Config
	http    *http.Client
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	cache   Cache
	stats   *stats.Counter
}

// NewClient creates a Client.
func NewClient(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter: rate.NewLimiter(limit, max(1, int(cfg.RateLimit))),
	}
	if cfg.Circuit != nil {
		c.breaker = resilience.NewCircuitBreaker(*cfg.Circuit)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxConcurrent returns the client's concurrency cap.
func (c *Client) MaxConcurrent() int {
	return c.cfg.MaxConcurrent
}

// counter prefers the counter carried by ctx so lookups are attributed to
// the archive that asked for them.
func (c *Client) counter(ctx context.Context) *stats.Counter {
	if sc := stats.FromContext(ctx); sc != nil {
		return sc
	}
	return c.stats
}

// Resolve looks up a single address. It returns nil without error when the
// provider has no match or the address has no fields to search on.
func (c *Client) Resolve(ctx context.Context, a model.Address) (*model.ResolvedAddress, error) {
	q, err := BuildQuery(a)
	if err != nil {
		return nil, err
	}
	counter := c.counter(ctx)
	if len(q) == 0 {
		counter.Inc("nominatim/skip/empty_query")
		return nil, nil
	}

	key := cacheKey(q)
	if c.cache != nil {
		res, found, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			zap.L().Debug("geocode: cache lookup", zap.Error(err))
		case found:
			counter.Inc("nominatim/cache/hit")
			return res, nil
		default:
			counter.Inc("nominatim/cache/miss")
		}
	}

	// The slot is held across retries so a struggling server never sees
	// more than MaxConcurrent requests from us.
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, eris.Wrap(err, "geocode: acquire slot")
	}
	defer c.sem.Release(1)

	retry := c.cfg.Retry
	onRetry := retry.OnRetry
	retry.OnRetry = func(attempt int, err error) {
		counter.Inc("nominatim/retry")
		zap.L().Debug("geocode: retrying search", zap.Int("attempt", attempt), zap.Error(err))
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}

	reqURL := SearchURL(c.cfg.BaseURL, q)
	res, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*model.ResolvedAddress, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "geocode: rate limit")
		}
		res, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*model.ResolvedAddress, error) {
			return c.search(ctx, reqURL, counter)
		})
		if eris.Is(err, resilience.ErrCircuitOpen) {
			return nil, resilience.NewTransientError(err, 0)
		}
		return res, err
	})
	if err != nil {
		return nil, err
	}

	if res != nil {
		counter.Inc("nominatim/match")
	} else {
		counter.Inc("nominatim/no_match")
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, key, res); err != nil {
			zap.L().Debug("geocode: cache store", zap.Error(err))
		}
	}
	return res, nil
}

func (c *Client) search(ctx context.Context, reqURL string, counter *stats.Counter) (*model.ResolvedAddress, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	counter.Inc("nominatim/request")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: search request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		statusErr := &StatusError{Code: resp.StatusCode}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, &resilience.TransientError{
				Err:        statusErr,
				StatusCode: resp.StatusCode,
				RetryAfter: resilience.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			}
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read response")
	}
	return parseSearch(body)
}
