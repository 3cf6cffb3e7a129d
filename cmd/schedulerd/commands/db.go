package commands

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/feedline/scheduler/config"
	"github.com/feedline/scheduler/db"
	"github.com/feedline/scheduler/errors"
	"github.com/feedline/scheduler/logger"
	"github.com/feedline/scheduler/scheduler"
)

// DbCmd groups database maintenance operations. These run directly against
// the database file and are meant for operators, not for the running
// service.
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
	Long: `Database maintenance operations.

Examples:
  schedulerd db stats                    # Job and execution counts
  schedulerd db sweep --older-than 2h    # Fail running records older than 2h
  schedulerd db cleanup --retention 90   # Delete executions older than 90 days`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job and execution ledger statistics",
	RunE:  runDbStats,
}

var dbSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Mark stale running executions as failed",
	Long: `Fail any execution still marked running after the given age. Records like
this are left behind when the scheduler restarts mid-dispatch; the sweep is
never run automatically.`,
	RunE: runDbSweep,
}

var dbCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete execution records past the retention period",
	RunE:  runDbCleanup,
}

var (
	sweepOlderThanFlag time.Duration
	retentionDaysFlag  int
)

func init() {
	DbCmd.AddCommand(dbStatsCmd)
	DbCmd.AddCommand(dbSweepCmd)
	DbCmd.AddCommand(dbCleanupCmd)

	dbSweepCmd.Flags().DurationVar(&sweepOlderThanFlag, "older-than", 2*time.Hour, "Age beyond which a running record is considered stale")
	dbCleanupCmd.Flags().IntVar(&retentionDaysFlag, "retention", 90, "Retention period in days")
}

func openConfiguredDB() (*sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	database, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}
	return database, nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	database, err := openConfiguredDB()
	if err != nil {
		return err
	}
	defer database.Close()

	var totalJobs, enabledJobs int
	err = database.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(enabled), 0) FROM jobs
	`).Scan(&totalJobs, &enabledJobs)
	if err != nil {
		return errors.Wrap(err, "failed to query job stats")
	}

	var totalExecutions, running, completed, failed int
	err = database.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM executions
	`).Scan(&totalExecutions, &running, &completed, &failed)
	if err != nil {
		return errors.Wrap(err, "failed to query execution stats")
	}

	fmt.Println("Scheduler Database Statistics")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Jobs:             %d (%d enabled)\n", totalJobs, enabledJobs)
	fmt.Printf("Executions:       %d\n", totalExecutions)
	fmt.Printf("  running:        %d\n", running)
	fmt.Printf("  completed:      %d\n", completed)
	fmt.Printf("  failed:         %d\n", failed)
	return nil
}

func runDbSweep(cmd *cobra.Command, args []string) error {
	database, err := openConfiguredDB()
	if err != nil {
		return err
	}
	defer database.Close()

	marked, err := scheduler.NewExecutionStore(database).MarkStaleRunning(sweepOlderThanFlag)
	if err != nil {
		return err
	}

	fmt.Printf("Marked %d stale execution(s) as failed (older than %s)\n", marked, sweepOlderThanFlag)
	return nil
}

func runDbCleanup(cmd *cobra.Command, args []string) error {
	if retentionDaysFlag <= 0 {
		return errors.Newf("retention must be positive, got %d", retentionDaysFlag)
	}

	database, err := openConfiguredDB()
	if err != nil {
		return err
	}
	defer database.Close()

	deleted, err := scheduler.NewExecutionStore(database).PurgeOlderThan(retentionDaysFlag)
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d execution(s) older than %d days\n", deleted, retentionDaysFlag)
	return nil
}
