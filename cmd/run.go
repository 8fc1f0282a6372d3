package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/postalcrawl/internal/pipeline"
)

var runFlags runnerFlags

var runCmd = &cobra.Command{
	Use:   "run [archives...]",
	Short: "Extract and validate addresses in one pass",
	Long: "Runs both stages per archive: candidates are validated against Nominatim as they are extracted, " +
		"and the merged records are written next to the candidates.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		archives, err := resolveArchives(ctx, args, runFlags, env.Fetcher)
		if err != nil {
			return err
		}

		jr := pipeline.NewJob(env.Runner(runFlags), runFlags.Jobs()).Run(ctx, archives)
		formatJobResult(os.Stdout, jr)
		return jobError(jr)
	},
}

func init() {
	addRunnerFlags(runCmd, &runFlags)
	runCmd.Flags().BoolVar(&runFlags.dropUnmatched, "drop-unmatched", false, "omit candidates Nominatim could not resolve")
	rootCmd.AddCommand(runCmd)
}
