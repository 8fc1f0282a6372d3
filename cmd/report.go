package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/postalcrawl/internal/model"
	"github.com/sells-group/postalcrawl/internal/pipeline"
)

// formatJobResult writes one line per input followed by a totals line.
func formatJobResult(out io.Writer, jr pipeline.JobResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INPUT\tSTATUS\tCANDIDATES\tRECORDS\tMATCHED\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "-----\t------\t----------\t-------\t-------\t--------\t-----")

	var cands, recs, matched int
	for _, r := range jr.Results {
		cands += r.Candidates
		recs += r.Records
		matched += r.Matched
		errMsg := ""
		if r.Err != nil {
			errMsg = truncate(r.Err.Error(), 60)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			truncate(r.Archive, 60),
			r.Status,
			r.Candidates,
			r.Records,
			r.Matched,
			r.Duration.Round(time.Millisecond),
			errMsg,
		)
	}
	_, _ = fmt.Fprintf(w, "TOTAL\t%d/%d complete\t%d\t%d\t%d\t%s\t\n",
		jr.Count(model.RunStatusComplete)+jr.Count(model.RunStatusSkipped),
		len(jr.Results),
		cands, recs, matched,
		jr.Duration.Round(time.Millisecond),
	)
	_ = w.Flush()
}

// jobError fails the command when any input failed, after every input had
// its turn.
func jobError(jr pipeline.JobResult) error {
	failed := jr.Count(model.RunStatusFailed)
	if failed == 0 {
		return nil
	}
	zap.L().Warn("job finished with failures", zap.Int("failed", failed), zap.Int("inputs", len(jr.Results)))
	return eris.Errorf("%d of %d inputs failed", failed, len(jr.Results))
}

// truncate shortens s to at most n bytes, keeping the tail.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n+3:]
}
