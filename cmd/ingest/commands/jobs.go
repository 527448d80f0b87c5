package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seamline/ingest/db"
	"github.com/seamline/ingest/errors"
	"github.com/seamline/ingest/logger"
	"github.com/seamline/ingest/notify"
)

// JobsCmd groups notification-job inspection.
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect queued notification jobs",
	Long: `Inspect the durable notification job queue.

Examples:
  ingest jobs ls                    # List recent jobs
  ingest jobs ls --status queued    # List only queued jobs
  ingest jobs ls --limit 100`,
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List notification jobs, newest first",
	RunE:  runJobsLs,
}

var (
	jobsStatusFlag string
	jobsLimitFlag  int
)

func init() {
	JobsCmd.AddCommand(jobsLsCmd)
	jobsLsCmd.Flags().StringVar(&jobsStatusFlag, "status", "", "Filter by status (queued, running, completed, failed)")
	jobsLsCmd.Flags().IntVar(&jobsLimitFlag, "limit", 50, "Maximum number of jobs to show")
}

func runJobsLs(cmd *cobra.Command, args []string) error {
	database, _, err := openConfiguredDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, logger.Logger); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}

	jobs, err := notify.NewStore(database).ListJobs(cmd.Context(),
		notify.JobStatus(jobsStatusFlag), jobsLimitFlag)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No notification jobs")
		return nil
	}

	fmt.Printf("%-36s  %-16s  %-10s  %-20s  %s\n", "ID", "WORKER", "STATUS", "CREATED", "SOURCE")
	for _, job := range jobs {
		fmt.Printf("%-36s  %-16s  %-10s  %-20s  %s\n",
			job.ID, job.Worker, job.Status,
			job.CreatedAt.Format("2006-01-02 15:04:05"), job.Source)
		if job.Error != "" {
			fmt.Printf("    error: %s\n", job.Error)
		}
	}
	return nil
}
