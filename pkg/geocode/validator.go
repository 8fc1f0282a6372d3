package geocode

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/postalcrawl/internal/model"
	"github.com/sells-group/postalcrawl/internal/resilience"
	"github.com/sells-group/postalcrawl/internal/stats"
)

// Resolver resolves a single address. *Client implements it.
type Resolver interface {
	Resolve(ctx context.Context, a model.Address) (*model.ResolvedAddress, error)
}

// DeadLetters receives candidates whose lookup failed.
type DeadLetters interface {
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithValidatorStats reports outcomes to counter.
func WithValidatorStats(counter *stats.Counter) ValidatorOption {
	return func(v *Validator) { v.stats = counter }
}

// WithDeadLetters enqueues failed lookups to dlq. source labels the entries.
func WithDeadLetters(dlq DeadLetters, source string, maxRetries int) ValidatorOption {
	return func(v *Validator) {
		v.dlq = dlq
		v.source = source
		v.maxRetries = maxRetries
	}
}

// Validator fans candidates out to a Resolver and pairs each with its result.
// A failed lookup yields an unmatched result; it never affects other candidates.
type Validator struct {
	resolver   Resolver
	workers    int
	stats      *stats.Counter
	dlq        DeadLetters
	source     string
	maxRetries int
	now        func() time.Time
}

// NewValidator creates a Validator running workers lookups at a time.
func NewValidator(r Resolver, workers int, opts ...ValidatorOption) *Validator {
	if workers <= 0 {
		workers = 1
	}
	v := &Validator{resolver: r, workers: workers, maxRetries: 3, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate resolves one candidate. Failures are logged, counted and, when
// retryable, dead-lettered; the result is then unmatched.
func (v *Validator) Validate(ctx context.Context, a model.Address) model.ValidationResult {
	v.stats.Inc("validate/candidate")
	if v.stats != nil {
		ctx = stats.NewContext(ctx, v.stats)
	}
	res, err := v.resolver.Resolve(ctx, a)
	if err == nil {
		return model.ValidationResult{Candidate: a, Resolved: res}
	}

	switch {
	case ctx.Err() != nil:
		v.stats.Inc("validate/cancelled")
	case eris.Is(err, ErrMalformedQuery):
		v.stats.Inc("error/nominatim/malformed_query")
		zap.L().Debug("geocode: malformed query",
			zap.String("url", a.Provenance.URL),
			zap.Error(err),
		)
	default:
		v.countFailure(err)
		zap.L().Warn("geocode: resolve failed",
			zap.String("url", a.Provenance.URL),
			zap.String("street", a.Street),
			zap.Error(err),
		)
		if resilience.IsTransient(err) {
			v.deadLetter(ctx, a, err)
		}
	}
	return model.ValidationResult{Candidate: a}
}

func (v *Validator) countFailure(err error) {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		v.stats.Inc("error/nominatim/http_status/" + strconv.Itoa(se.Code))
	case eris.Is(err, resilience.ErrCircuitOpen):
		v.stats.Inc("error/nominatim/circuit_open")
	default:
		v.stats.Inc("error/nominatim/request")
	}
}

func (v *Validator) deadLetter(ctx context.Context, a model.Address, cause error) {
	if v.dlq == nil {
		return
	}
	entry := resilience.NewDLQEntry(a, v.source, cause, v.maxRetries, v.now())
	if err := v.dlq.EnqueueDLQ(ctx, entry); err != nil {
		zap.L().Error("geocode: enqueue dead letter", zap.Error(err))
		return
	}
	v.stats.Inc("validate/dead_lettered")
}

// ValidateStream resolves candidates from in with a fixed pool of workers and
// sends results in completion order. The returned channel closes once in is
// drained or ctx is done.
func (v *Validator) ValidateStream(ctx context.Context, in <-chan model.Address) <-chan model.ValidationResult {
	out := make(chan model.ValidationResult, v.workers)

	g, gctx := errgroup.WithContext(ctx)
	for range v.workers {
		g.Go(func() error {
			for {
				var a model.Address
				var ok bool
				select {
				case <-gctx.Done():
					return nil
				case a, ok = <-in:
					if !ok {
						return nil
					}
				}
				r := v.Validate(gctx, a)
				select {
				case out <- r:
				case <-gctx.Done():
					return nil
				}
			}
		})
	}
	go func() {
		_ = g.Wait()
		close(out)
	}()
	return out
}

// ValidateAll resolves every candidate and returns one result per input,
// in completion order. It returns early, with partial results, if ctx is done.
func (v *Validator) ValidateAll(ctx context.Context, addrs []model.Address) []model.ValidationResult {
	in := make(chan model.Address)
	go func() {
		defer close(in)
		for _, a := range addrs {
			select {
			case in <- a:
			case <-ctx.Done():
				return
			}
		}
	}()

	results := make([]model.ValidationResult, 0, len(addrs))
	for r := range v.ValidateStream(ctx, in) {
		results = append(results, r)
	}
	return results
}
