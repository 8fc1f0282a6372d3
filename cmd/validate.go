package main

import (
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/postalcrawl/internal/pipeline"
)

var (
	validateFlags    runnerFlags
	validateRetryDLQ bool
	validateDLQLimit int
)

var validateCmd = &cobra.Command{
	Use:   "validate [candidate files or directories...]",
	Short: "Validate extracted candidates against Nominatim",
	Long: "Resolves every candidate in the given .candidates.jsonl.gz files (directories are searched) " +
		"and writes .records.jsonl.gz next to each. --retry-dlq replays dead-lettered lookups that are due.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !validateRetryDLQ {
			return eris.New("nothing to do: pass candidate files or --retry-dlq")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		runner := env.Runner(validateFlags)

		if validateRetryDLQ {
			if env.Store == nil {
				return eris.New("--retry-dlq needs a store (store.driver is none)")
			}
			sum, err := runner.ReplayDLQ(ctx, validateDLQLimit)
			if err != nil {
				return eris.Wrap(err, "replay dead letters")
			}
			zap.L().Info("dead letters replayed",
				zap.Int("attempted", sum.Attempted),
				zap.Int("resolved", sum.Resolved),
				zap.Int("failed", sum.Failed),
			)
		}

		if len(args) == 0 {
			return nil
		}
		files, err := candidateFiles(args)
		if err != nil {
			return err
		}
		jr := pipeline.NewJob(runner, validateFlags.Jobs()).Validate(ctx, files)
		formatJobResult(os.Stdout, jr)
		return jobError(jr)
	},
}

// candidateFiles expands directories into the candidate files beneath them.
func candidateFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "stat %s", arg)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, pipeline.CandidatesSuffix) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, eris.Wrapf(err, "walk %s", arg)
		}
	}
	if len(files) == 0 {
		return nil, eris.New("no candidate files found")
	}
	return files, nil
}

func init() {
	validateCmd.Flags().BoolVar(&validateFlags.force, "force", false, "revalidate files whose records already exist")
	validateCmd.Flags().IntVar(&validateFlags.jobs, "jobs", 0, "files validated in parallel (default from config)")
	validateCmd.Flags().BoolVar(&validateFlags.dropUnmatched, "drop-unmatched", false, "omit candidates Nominatim could not resolve")
	validateCmd.Flags().BoolVar(&validateRetryDLQ, "retry-dlq", false, "replay dead-lettered lookups that are due")
	validateCmd.Flags().IntVar(&validateDLQLimit, "dlq-limit", 1000, "max dead letters replayed per invocation")
	rootCmd.AddCommand(validateCmd)
}
