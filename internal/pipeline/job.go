package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/postalcrawl/internal/model"
)

// DefaultJobs is the number of archives processed at once.
const DefaultJobs = 6

// JobResult summarizes a multi-archive job.
type JobResult struct {
	Results  []ArchiveResult // in input order
	Stats    map[string]int64
	Duration time.Duration
}

// Count returns the number of results with the given status.
func (j JobResult) Count(status model.RunStatus) int {
	n := 0
	for _, r := range j.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Job runs a Runner over many inputs in parallel. One input failing does not
// stop the others.
type Job struct {
	runner *Runner
	jobs   int
}

// NewJob creates a job processing up to jobs inputs at once.
func NewJob(r *Runner, jobs int) *Job {
	if jobs <= 0 {
		jobs = DefaultJobs
	}
	return &Job{runner: r, jobs: jobs}
}

// Run extracts (and, if the runner has a resolver, validates) each archive.
func (j *Job) Run(ctx context.Context, archives []string) JobResult {
	return j.each(ctx, archives, j.runner.RunArchive)
}

// Validate validates each candidates file.
func (j *Job) Validate(ctx context.Context, files []string) JobResult {
	return j.each(ctx, files, j.runner.ValidateFile)
}

func (j *Job) each(ctx context.Context, inputs []string, fn func(context.Context, string) ArchiveResult) JobResult {
	start := time.Now()
	results := make([]ArchiveResult, len(inputs))

	g := new(errgroup.Group)
	g.SetLimit(j.jobs)
	for i, in := range inputs {
		if ctx.Err() != nil {
			results[i] = ArchiveResult{Archive: in, Status: model.RunStatusFailed, Err: ctx.Err()}
			continue
		}
		g.Go(func() error {
			results[i] = fn(ctx, in)
			return nil
		})
	}
	_ = g.Wait()

	jr := JobResult{
		Results:  results,
		Stats:    j.runner.Stats().Snapshot(),
		Duration: time.Since(start),
	}
	zap.L().Info("pipeline: job complete",
		zap.Int("inputs", len(inputs)),
		zap.Int("complete", jr.Count(model.RunStatusComplete)),
		zap.Int("skipped", jr.Count(model.RunStatusSkipped)),
		zap.Int("failed", jr.Count(model.RunStatusFailed)),
		zap.Duration("duration", jr.Duration),
	)
	return jr
}
