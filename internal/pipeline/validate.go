package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/postalcrawl/internal/model"
	"github.com/sells-group/postalcrawl/internal/resilience"
	"github.com/sells-group/postalcrawl/internal/sink"
)

// ValidationOutputs names the artifacts for a candidate file produced by an
// earlier extraction.
func ValidationOutputs(candidates string) Outputs {
	return outputsFor(strings.TrimSuffix(candidates, CandidatesSuffix))
}

// ValidateFile resolves every candidate in a candidates file and writes the
// merged records next to it.
func (r *Runner) ValidateFile(ctx context.Context, path string) ArchiveResult {
	start := time.Now()
	out := ValidationOutputs(path)
	res := ArchiveResult{Archive: path, Outputs: out}
	log := zap.L().With(zap.String("candidates", path))

	if r.cfg.SkipExisting && sink.Exists(out.Records) {
		log.Info("pipeline: records exist, skipping", zap.String("records", out.Records))
		res.Status = model.RunStatusSkipped
		return res
	}
	if r.resolver == nil {
		res.Status = model.RunStatusFailed
		res.Err = eris.New("pipeline: validation needs a resolver")
		return res
	}

	counter := r.stats.Child()
	runID := r.startRun(ctx, path, log)

	err := func() (err error) {
		addrs, err := sink.ReadAll[model.Address](path)
		if err != nil {
			return err
		}
		res.Candidates = len(addrs)

		results := r.validator(counter, path).ValidateAll(ctx, addrs)
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, vr := range results {
			if vr.Matched() {
				res.Matched++
			}
		}
		recs := Merge(results, r.cfg.Policy)

		w, err := sink.Create[model.Record](out.Records)
		if err != nil {
			return err
		}
		defer abortOnError(w, &err)
		for _, rec := range recs {
			if err = w.Write(rec); err != nil {
				return err
			}
		}
		for i := 0; i < len(recs); i += saveBatchSize {
			r.save(ctx, runID, recs[i:min(i+saveBatchSize, len(recs))], counter)
		}
		res.Records = w.Count()
		return w.Close()
	}()

	res.Stats = counter.Snapshot()
	res.Duration = time.Since(start)
	res.Err = err
	if err != nil {
		res.Status = model.RunStatusFailed
		log.Error("pipeline: validation failed", zap.Error(err))
	} else {
		res.Status = model.RunStatusComplete
		log.Info("pipeline: validation complete",
			zap.Int("candidates", res.Candidates),
			zap.Int("records", res.Records),
			zap.Int("matched", res.Matched),
			zap.Duration("duration", res.Duration),
		)
	}
	r.finishRun(context.WithoutCancel(ctx), runID, &res, log)
	return res
}

// ReplaySummary counts the outcome of a dead-letter replay.
type ReplaySummary struct {
	Attempted int
	Resolved  int
	Unmatched int
	Failed    int
}

// ReplayDLQ retries dead-lettered lookups that are due. A successful lookup,
// matched or not, is saved as a record and removed from the queue; a failure
// is re-enqueued with a later retry time.
func (r *Runner) ReplayDLQ(ctx context.Context, limit int) (ReplaySummary, error) {
	var sum ReplaySummary
	if r.store == nil || r.resolver == nil {
		return sum, eris.New("pipeline: dead-letter replay needs a store and a resolver")
	}
	entries, err := r.store.ListDLQ(ctx, resilience.DLQFilter{ReadyAt: r.now(), Limit: limit})
	if err != nil {
		return sum, err
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Attempted++
		resolved, err := r.resolver.Resolve(ctx, e.Candidate)
		if err != nil {
			sum.Failed++
			e.Fail(err, r.now())
			if qerr := r.store.EnqueueDLQ(ctx, e); qerr != nil {
				return sum, qerr
			}
			zap.L().Warn("pipeline: replay failed",
				zap.String("dlq_id", e.ID),
				zap.Int("retry_count", e.RetryCount),
				zap.Error(err),
			)
			continue
		}

		vr := model.ValidationResult{Candidate: e.Candidate, Resolved: resolved}
		if vr.Matched() {
			sum.Resolved++
		} else {
			sum.Unmatched++
		}
		if recs := Merge([]model.ValidationResult{vr}, r.cfg.Policy); len(recs) > 0 {
			if _, err := r.store.SaveRecords(ctx, "", recs); err != nil {
				return sum, err
			}
		}
		if err := r.store.DeleteDLQ(ctx, e.ID); err != nil {
			return sum, err
		}
	}
	zap.L().Info("pipeline: dead-letter replay complete",
		zap.Int("attempted", sum.Attempted),
		zap.Int("resolved", sum.Resolved),
		zap.Int("unmatched", sum.Unmatched),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}
