package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/feedline/scheduler/cmd/schedulerd/commands"
	"github.com/feedline/scheduler/logger"
)

var rootCmd = &cobra.Command{
	Use:   "schedulerd",
	Short: "Centralized cron job scheduler",
	Long: `schedulerd - centralized cron scheduler for internal services.

Jobs are registered by their owning services and dispatched as HTTP calls on
their cron schedules. Every execution attempt is recorded in a durable
ledger with outcome, duration, and item counts.

Available commands:
  serve   - Start the scheduler engine and admin API
  jobs    - Inspect and control jobs via the admin API
  db      - Database maintenance (stats, stale sweep, retention cleanup)
  config  - Show the resolved configuration
  version - Show version information

Examples:
  schedulerd serve                         # Start the scheduler
  schedulerd jobs ls                       # List registered jobs
  schedulerd jobs trigger cleanup --wait   # Run a job now and wait
  schedulerd db sweep --older-than 2h      # Fail stale running records`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetCount("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("log-json")

		var err error
		if verbose > 0 {
			err = logger.InitializeVerbose(jsonOutput)
		} else {
			err = logger.Initialize(jsonOutput)
		}
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit structured JSON logs")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
