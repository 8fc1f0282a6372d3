package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/postalcrawl/internal/model"
	"github.com/sells-group/postalcrawl/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect archive run history",
	Long:  "Commands for listing and summarizing the runs recorded in the store.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archive runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		archive, _ := cmd.Flags().GetString("archive")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:  model.RunStatus(status),
			Archive: archive,
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		if since > 0 {
			runs = runsSince(runs, time.Now().Add(-since))
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

func openStore(cmd *cobra.Command) (store.Store, error) {
	st, err := store.Open(cmd.Context(), cfg.Store.Driver, cfg.Store.DatabaseURL, cfg.Store.Pool)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if st == nil {
		return nil, eris.New("run history needs a store (store.driver is none)")
	}
	return st, nil
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().String("archive", "", "filter by archive path")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "skip the newest N runs")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Complete   int
	Failed     int
	Running    int
	Candidates int
	Matched    int
	AvgDurSecs float64
	TopErrors  []errorCount
}

type errorCount struct {
	Message string
	Count   int
}

func runsSince(runs []model.Run, after time.Time) []model.Run {
	var out []model.Run
	for _, r := range runs {
		if !r.CreatedAt.Before(after) {
			out = append(out, r)
		}
	}
	return out
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.Run) runStats {
	var s runStats
	s.Total = len(runs)

	var totalDur time.Duration
	var durCount int
	errs := make(map[string]int)

	for _, r := range runs {
		s.Candidates += r.Candidates
		s.Matched += r.Matched
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
			durCount++
		case model.RunStatusFailed:
			s.Failed++
			if r.Error != "" {
				errs[truncate(r.Error, 60)]++
			}
		case model.RunStatusRunning:
			s.Running++
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	for msg, n := range errs {
		s.TopErrors = append(s.TopErrors, errorCount{Message: msg, Count: n})
	}
	sort.Slice(s.TopErrors, func(i, j int) bool {
		if s.TopErrors[i].Count != s.TopErrors[j].Count {
			return s.TopErrors[i].Count > s.TopErrors[j].Count
		}
		return s.TopErrors[i].Message < s.TopErrors[j].Message
	})
	if len(s.TopErrors) > 5 {
		s.TopErrors = s.TopErrors[:5]
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tARCHIVE\tSTATUS\tCANDIDATES\tMATCHED\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t----------\t-------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			truncate(r.Archive, 40),
			r.Status,
			r.Candidates,
			r.Matched,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	_, _ = fmt.Fprintf(w, "Candidates:\t%d\n", s.Candidates)
	_, _ = fmt.Fprintf(w, "Matched:\t%d\n", s.Matched)
	if s.Candidates > 0 {
		_, _ = fmt.Fprintf(w, "Match rate:\t%.1f%%\n", 100*float64(s.Matched)/float64(s.Candidates))
	}
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	for _, e := range s.TopErrors {
		_, _ = fmt.Fprintf(w, "  %dx\t%s\n", e.Count, e.Message)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
