package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/postalcrawl/internal/extract"
	"github.com/sells-group/postalcrawl/internal/fetcher"
	"github.com/sells-group/postalcrawl/internal/model"
	"github.com/sells-group/postalcrawl/internal/sink"
	"github.com/sells-group/postalcrawl/internal/stats"
	"github.com/sells-group/postalcrawl/internal/store"
	"github.com/sells-group/postalcrawl/internal/warc"
	"github.com/sells-group/postalcrawl/pkg/geocode"
)

// Output file suffixes.
const (
	CandidatesSuffix = ".candidates.jsonl.gz"
	RecordsSuffix    = ".records.jsonl.gz"
	StatsSuffix      = ".stats.json"
	ErrorSuffix      = ".error"
)

const saveBatchSize = 500

// Config controls where a Runner reads and writes.
type Config struct {
	OutputDir    string
	SkipExisting bool
	// Remote treats archive names as crawl-relative paths under BaseURL.
	Remote        bool
	BaseURL       string
	Extract       extract.Config
	Policy        UnmatchedPolicy
	Workers       int // concurrent lookups per archive
	DLQMaxRetries int
}

// Outputs names the artifacts produced for one archive.
type Outputs struct {
	Candidates string
	Records    string
	Stats      string
	Error      string
}

// ArchiveResult summarizes one archive or candidate file.
type ArchiveResult struct {
	Archive    string
	Outputs    Outputs
	Status     model.RunStatus
	Candidates int
	Records    int
	Matched    int
	Stats      map[string]int64
	Err        error
	Duration   time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithFetcher streams remote archives through f.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(r *Runner) { r.fetcher = f }
}

// WithResolver validates candidates as they are extracted.
func WithResolver(res geocode.Resolver) Option {
	return func(r *Runner) { r.resolver = res }
}

// WithStore records runs and records, and dead-letters failed lookups.
func WithStore(s store.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithStats aggregates every archive's counters into c.
func WithStats(c *stats.Counter) Option {
	return func(r *Runner) { r.stats = c }
}

// Runner processes single archives. It is safe for concurrent use.
type Runner struct {
	cfg      Config
	fetcher  fetcher.Fetcher
	resolver geocode.Resolver
	store    store.Store
	stats    *stats.Counter
	now      func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(cfg Config, opts ...Option) *Runner {
	if cfg.BaseURL == "" {
		cfg.BaseURL = warc.DefaultBaseURL
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	r := &Runner{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	if r.stats == nil {
		r.stats = stats.NewCounter()
	}
	return r
}

// Stats returns the aggregate counters of every archive run so far.
func (r *Runner) Stats() *stats.Counter {
	return r.stats
}

// Outputs names the artifacts for archive. Common Crawl paths map to
// <out>/<segment>/<number>; other files to <out>/<name>.
func (r *Runner) Outputs(archive string) Outputs {
	var base string
	if id, err := warc.ParseFileID(archive); err == nil {
		base = filepath.Join(r.cfg.OutputDir, id.Segment, fmt.Sprintf("%05d", id.Number))
	} else {
		name := filepath.Base(archive)
		for _, ext := range []string{".gz", ".warc"} {
			name = strings.TrimSuffix(name, ext)
		}
		base = filepath.Join(r.cfg.OutputDir, name)
	}
	return outputsFor(base)
}

func outputsFor(base string) Outputs {
	return Outputs{
		Candidates: base + CandidatesSuffix,
		Records:    base + RecordsSuffix,
		Stats:      base + StatsSuffix,
		Error:      base + ErrorSuffix,
	}
}

// done reports whether a previous run left complete outputs.
func (r *Runner) done(out Outputs) bool {
	if !sink.Exists(out.Candidates) || !sink.Exists(out.Stats) {
		return false
	}
	return r.resolver == nil || sink.Exists(out.Records)
}

// RunArchive extracts candidates from one archive and, with a resolver,
// validates them as they stream. Only archive-level failures fail the result;
// those leave an .error sidecar so a job can move on.
func (r *Runner) RunArchive(ctx context.Context, archive string) ArchiveResult {
	start := time.Now()
	out := r.Outputs(archive)
	res := ArchiveResult{Archive: archive, Outputs: out}
	log := zap.L().With(zap.String("archive", archive))

	if r.cfg.SkipExisting && r.done(out) {
		log.Info("pipeline: outputs exist, skipping", zap.String("candidates", out.Candidates))
		res.Status = model.RunStatusSkipped
		return res
	}

	counter := r.stats.Child()
	runID := r.startRun(ctx, archive, log)
	err := r.process(ctx, archive, out, counter, runID, &res)
	r.finish(ctx, &res, counter, runID, err, start, log)
	return res
}

func (r *Runner) finish(ctx context.Context, res *ArchiveResult, counter *stats.Counter, runID string, err error, start time.Time, log *zap.Logger) {
	res.Stats = counter.Snapshot()
	res.Duration = time.Since(start)
	res.Err = err

	switch {
	case err == nil:
		res.Status = model.RunStatusComplete
		if werr := sink.WriteJSON(res.Outputs.Stats, res.Stats); werr != nil {
			log.Warn("pipeline: write stats sidecar", zap.Error(werr))
		}
		_ = os.Remove(res.Outputs.Error)
		log.Info("pipeline: archive complete",
			zap.Int("candidates", res.Candidates),
			zap.Int("records", res.Records),
			zap.Int("matched", res.Matched),
			zap.Int64("records_read", res.Stats["warc/record_count"]),
			zap.Duration("duration", res.Duration),
		)
	case ctx.Err() != nil:
		res.Status = model.RunStatusFailed
		log.Warn("pipeline: archive cancelled", zap.Error(err))
	default:
		res.Status = model.RunStatusFailed
		if werr := sink.WriteFile(res.Outputs.Error, []byte(err.Error()+"\n")); werr != nil {
			log.Warn("pipeline: write error sidecar", zap.Error(werr))
		}
		log.Error("pipeline: archive failed", zap.Error(err), zap.Duration("duration", res.Duration))
	}
	r.finishRun(context.WithoutCancel(ctx), runID, res, log)
}

func (r *Runner) process(ctx context.Context, archive string, out Outputs, counter *stats.Counter, runID string, res *ArchiveResult) (err error) {
	reader, closeSource, err := r.open(ctx, archive, counter)
	if err != nil {
		return err
	}
	defer closeSource()

	cands, err := sink.Create[model.Address](out.Candidates)
	if err != nil {
		return err
	}
	defer abortOnError(cands, &err)

	pipe := extract.New(counter, extract.WithConfig(r.cfg.Extract))
	if r.resolver == nil {
		err = pipe.Run(ctx, reader, cands.Write)
		res.Candidates = cands.Count()
		if err != nil {
			return err
		}
		return cands.Close()
	}

	recs, err := sink.Create[model.Record](out.Records)
	if err != nil {
		return err
	}
	defer abortOnError(recs, &err)

	v := r.validator(counter, out.Candidates)
	in := make(chan model.Address, r.cfg.Workers)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(in)
		return pipe.Run(gctx, reader, func(a model.Address) error {
			if err := cands.Write(a); err != nil {
				return err
			}
			select {
			case in <- a:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})
	g.Go(func() error {
		return r.drain(gctx, v.ValidateStream(gctx, in), recs, runID, counter, res)
	})
	if err = g.Wait(); err != nil {
		return err
	}
	res.Candidates = cands.Count()
	return errors.Join(cands.Close(), recs.Close())
}

// drain applies the unmatched policy to results as they complete and writes
// the survivors.
func (r *Runner) drain(ctx context.Context, results <-chan model.ValidationResult, w *sink.Writer[model.Record], runID string, counter *stats.Counter, res *ArchiveResult) error {
	batch := make([]model.Record, 0, saveBatchSize)
	for vr := range results {
		if vr.Matched() {
			res.Matched++
		}
		if !r.cfg.Policy.Keep(vr) {
			continue
		}
		rec := model.NewRecord(vr)
		if err := w.Write(rec); err != nil {
			return err
		}
		batch = append(batch, rec)
		if len(batch) == saveBatchSize {
			r.save(ctx, runID, batch, counter)
			batch = batch[:0]
		}
	}
	r.save(ctx, runID, batch, counter)
	res.Records = w.Count()
	return nil
}

// save persists records. A store failure is counted and logged; the output
// file remains the record of truth.
func (r *Runner) save(ctx context.Context, runID string, recs []model.Record, counter *stats.Counter) {
	if r.store == nil || len(recs) == 0 {
		return
	}
	if _, err := r.store.SaveRecords(ctx, runID, recs); err != nil {
		counter.Add("error/store/save_records", int64(len(recs)))
		zap.L().Warn("pipeline: save records", zap.String("run_id", runID), zap.Error(err))
	}
}

func (r *Runner) validator(counter *stats.Counter, source string) *geocode.Validator {
	opts := []geocode.ValidatorOption{geocode.WithValidatorStats(counter)}
	if r.store != nil {
		opts = append(opts, geocode.WithDeadLetters(r.store, source, r.cfg.DLQMaxRetries))
	}
	return geocode.NewValidator(r.resolver, r.cfg.Workers, opts...)
}

// open returns a record reader for a local file or, in remote mode, a
// streamed download.
func (r *Runner) open(ctx context.Context, archive string, counter *stats.Counter) (*warc.Reader, func(), error) {
	if !r.cfg.Remote {
		rd, err := warc.Open(archive, counter)
		if err != nil {
			return nil, nil, err
		}
		return rd, func() {
			rd.Close() //nolint:errcheck
		}, nil
	}
	if r.fetcher == nil {
		return nil, nil, eris.New("pipeline: remote archives need a fetcher")
	}
	body, err := r.fetcher.Download(ctx, warc.RemoteURL(r.cfg.BaseURL, archive))
	if err != nil {
		return nil, nil, err
	}
	rd, err := warc.NewReader(body, counter)
	if err != nil {
		body.Close() //nolint:errcheck
		return nil, nil, err
	}
	return rd, func() {
		rd.Close()   //nolint:errcheck
		body.Close() //nolint:errcheck
	}, nil
}

func (r *Runner) startRun(ctx context.Context, name string, log *zap.Logger) string {
	if r.store == nil {
		return ""
	}
	run, err := r.store.CreateRun(ctx, name)
	if err != nil {
		log.Warn("pipeline: create run", zap.Error(err))
		return ""
	}
	return run.ID
}

func (r *Runner) finishRun(ctx context.Context, runID string, res *ArchiveResult, log *zap.Logger) {
	if r.store == nil || runID == "" {
		return
	}
	sum := model.RunSummary{
		Status:     res.Status,
		Stats:      res.Stats,
		Candidates: res.Candidates,
		Matched:    res.Matched,
	}
	if res.Err != nil {
		sum.Error = res.Err.Error()
	}
	if err := r.store.FinishRun(ctx, runID, sum); err != nil {
		log.Warn("pipeline: finish run", zap.String("run_id", runID), zap.Error(err))
	}
}

type aborter interface {
	Abort() error
}

func abortOnError(w aborter, err *error) {
	if *err != nil {
		w.Abort() //nolint:errcheck
	}
}
