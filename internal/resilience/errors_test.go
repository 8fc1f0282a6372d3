package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("x"), 503), true},
		{"wrapped explicit", eris.Wrap(NewTransientError(errors.New("x"), 429), "geocode: search"), true},
		{"net timeout", fmt.Errorf("get: %w", timeoutErr{}), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"message heuristic", errors.New("read tcp: connection reset by peer"), true},
		{"plain", errors.New("invalid json"), false},
		{"context canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 403, 404, 501} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Second, ParseRetryAfter("30", now))
	assert.Zero(t, ParseRetryAfter("", now))
	assert.Zero(t, ParseRetryAfter("-5", now))
	assert.Zero(t, ParseRetryAfter("soon", now))
	assert.Equal(t, 90*time.Second, ParseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, ParseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
}

func TestRetryAfter(t *testing.T) {
	err := eris.Wrap(&TransientError{Err: errors.New("429"), RetryAfter: time.Second}, "x")
	assert.Equal(t, time.Second, RetryAfter(err))
	assert.Zero(t, RetryAfter(errors.New("plain")))
}
