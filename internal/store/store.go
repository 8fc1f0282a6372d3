// Package store persists geocode lookups, run history, dead-lettered
// candidates and validated records.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/postalcrawl/internal/model"
	"github.com/sells-group/postalcrawl/internal/resilience"
)

// Supported drivers.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  model.RunStatus `json:"status,omitempty"`
	Archive string          `json:"archive,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the pipeline.
type Store interface {
	// Geocode cache. A nil result with found=true is a cached miss.
	GetCachedGeocode(ctx context.Context, key string, maxAge time.Duration) (*model.ResolvedAddress, bool, error)
	SetCachedGeocode(ctx context.Context, key string, res *model.ResolvedAddress) error

	// Runs
	CreateRun(ctx context.Context, archive string) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, sum model.RunSummary) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Records are keyed by RecordKey; saving the same claim twice overwrites it.
	SaveRecords(ctx context.Context, runID string, recs []model.Record) (int64, error)

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	DeleteDLQ(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured driver and applies migrations. The none
// driver returns a nil Store.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case "", DriverNone:
		return nil, nil
	case DriverSQLite:
		s, err = NewSQLite(dsn)
	case DriverPostgres:
		s, err = NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

// RecordKey identifies a claimed address on a page: the archive record id plus
// the claimed fields.
func RecordKey(r model.Record) string {
	claimed, _ := json.Marshal(r.Claimed)
	h := sha256.New()
	h.Write([]byte(r.RecordID))
	h.Write([]byte{0})
	h.Write(claimed)
	return hex.EncodeToString(h.Sum(nil))
}

// encodeResolved returns the JSON document for a lookup result. A miss is
// stored as SQL NULL.
func encodeResolved(res *model.ResolvedAddress) ([]byte, error) {
	if res == nil {
		return nil, nil
	}
	data, err := json.Marshal(res)
	return data, eris.Wrap(err, "store: marshal resolved address")
}

func decodeResolved(data []byte) (*model.ResolvedAddress, error) {
	if data == nil {
		return nil, nil
	}
	var res model.ResolvedAddress
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal resolved address")
	}
	return &res, nil
}

func cacheFresh(cachedAt time.Time, maxAge time.Duration, now time.Time) bool {
	return maxAge <= 0 || now.Sub(cachedAt) <= maxAge
}

// recordRow is a Record in storage form.
type recordRow struct {
	Key       string
	RunID     string
	URL       string
	RecordID  string
	Date      string
	Claimed   []byte
	Resolved  []byte // nil on a miss
	Location  []byte // EWKB point, nil on a miss
	CreatedAt time.Time
}

var recordColumns = []string{
	"record_key", "run_id", "url", "warc_rec_id", "warc_date",
	"claimed", "resolved", "location", "created_at",
}

func newRecordRow(runID string, r model.Record, now time.Time) (recordRow, error) {
	claimed, err := json.Marshal(r.Claimed)
	if err != nil {
		return recordRow{}, eris.Wrap(err, "store: marshal claimed address")
	}
	resolved, err := encodeResolved(r.Resolved)
	if err != nil {
		return recordRow{}, err
	}
	loc, err := EncodeLocation(r.Resolved)
	if err != nil {
		return recordRow{}, err
	}
	return recordRow{
		Key:       RecordKey(r),
		RunID:     runID,
		URL:       r.URL,
		RecordID:  r.RecordID,
		Date:      r.Date,
		Claimed:   claimed,
		Resolved:  resolved,
		Location:  loc,
		CreatedAt: now,
	}, nil
}
