package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/postalcrawl/internal/pipeline"
)

var extractFlags runnerFlags

var extractCmd = &cobra.Command{
	Use:   "extract [archives...]",
	Short: "Extract address candidates from WARC archives",
	Long: "Streams each archive and writes <out>/<segment>/<n>.candidates.jsonl.gz with a .stats.json sidecar. " +
		"Archives are local files, or Common Crawl paths with --remote.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		archives, err := resolveArchives(ctx, args, extractFlags, env.Fetcher)
		if err != nil {
			return err
		}

		jr := pipeline.NewJob(env.Runner(extractFlags), extractFlags.Jobs()).Run(ctx, archives)
		formatJobResult(os.Stdout, jr)
		return jobError(jr)
	},
}

func addRunnerFlags(cmd *cobra.Command, f *runnerFlags) {
	cmd.Flags().StringVar(&f.outDir, "out", "", "output directory (default from config)")
	cmd.Flags().BoolVar(&f.remote, "remote", false, "treat archives as Common Crawl paths and stream them over HTTP")
	cmd.Flags().BoolVar(&f.force, "force", false, "reprocess archives whose outputs already exist")
	cmd.Flags().IntVar(&f.jobs, "jobs", 0, "archives processed in parallel (default from config)")
	cmd.Flags().StringVar(&f.paths, "paths", "", "warc.paths listing: local file, URL or crawl-relative path")
	cmd.Flags().IntVar(&f.first, "first", 0, "process only the first N archives")
}

func init() {
	addRunnerFlags(extractCmd, &extractFlags)
	rootCmd.AddCommand(extractCmd)
}
