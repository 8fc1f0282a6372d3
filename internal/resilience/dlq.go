package resilience

import (
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/postalcrawl/internal/model"
)

// Error classes recorded on dead-letter entries.
const (
	ErrorTransient = "transient"
	ErrorPermanent = "permanent"
)

// DLQEntry is a candidate whose geocoding lookup failed and may be replayed.
type DLQEntry struct {
	ID           string        `json:"id"`
	Candidate    model.Address `json:"candidate"`
	Source       string        `json:"source,omitempty"` // candidate file or archive it came from
	Error        string        `json:"error"`
	ErrorType    string        `json:"error_type"`
	RetryCount   int           `json:"retry_count"`
	MaxRetries   int           `json:"max_retries"`
	NextRetryAt  time.Time     `json:"next_retry_at"`
	CreatedAt    time.Time     `json:"created_at"`
	LastFailedAt time.Time     `json:"last_failed_at"`
}

// DLQFilter selects entries from the queue.
type DLQFilter struct {
	ErrorType string    // "" matches every class
	ReadyAt   time.Time // zero matches regardless of NextRetryAt
	Limit     int
}

var dlqBackoff = RetryConfig{InitialBackoff: time.Minute, MaxBackoff: 6 * time.Hour}

// NewDLQEntry records the first failure of candidate.
func NewDLQEntry(candidate model.Address, source string, err error, maxRetries int, now time.Time) DLQEntry {
	e := DLQEntry{
		ID:         uuid.NewString(),
		Candidate:  candidate,
		Source:     source,
		MaxRetries: maxRetries,
		CreatedAt:  now,
	}
	e.record(err, now)
	return e
}

// Fail records a failed replay. Replays back off exponentially from one minute.
func (e *DLQEntry) Fail(err error, now time.Time) {
	e.RetryCount++
	e.record(err, now)
}

func (e *DLQEntry) record(err error, now time.Time) {
	e.Error = err.Error()
	e.ErrorType = ClassifyError(err)
	e.LastFailedAt = now
	e.NextRetryAt = now.Add(dlqBackoff.Backoff(e.RetryCount, nil))
}

// CanRetry reports whether the entry has retries left.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// ClassifyError returns ErrorTransient or ErrorPermanent.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return ErrorTransient
	}
	return ErrorPermanent
}
