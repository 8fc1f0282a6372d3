package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnavailable = NewTransientError(errors.New("503"), 503)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *clock, *[]string) {
	var transitions []string
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     reset,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	cb.now = clk.now
	return cb, clk, &transitions
}

func fail(context.Context) error { return errUnavailable }
func ok(context.Context) error   { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _, transitions := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	for range 3 {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errUnavailable)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []string{"closed->open"}, *transitions)
}

func TestCircuitBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	cb, _, _ := newTestBreaker(2, time.Minute)
	for range 5 {
		_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("no match") })
	}
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, ok))
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, clk, transitions := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clk.t = clk.t.Add(time.Minute)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// Failed trial reopens.
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, CircuitOpen, cb.State())

	clk.t = clk.t.Add(time.Minute)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, []string{
		"closed->open", "open->half-open", "half-open->open", "open->half-open", "half-open->closed",
	}, *transitions)
}

func TestCircuitBreaker_SingleProbeAtATime(t *testing.T) {
	cb, clk, _ := newTestBreaker(1, time.Minute)
	ctx := context.Background()
	_ = cb.Execute(ctx, fail)
	clk.t = clk.t.Add(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)
	close(release)
}

func TestExecuteVal_NilBreaker(t *testing.T) {
	v, err := ExecuteVal(context.Background(), nil, func(context.Context) (int, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestFromCircuitConfig(t *testing.T) {
	assert.Nil(t, FromCircuitConfig(0, time.Second))
	cfg := FromCircuitConfig(4, 0)
	require.NotNil(t, cfg)
	assert.Equal(t, 4, cfg.FailureThreshold)
	assert.Equal(t, DefaultCircuitBreakerConfig().ResetTimeout, cfg.ResetTimeout)
}
