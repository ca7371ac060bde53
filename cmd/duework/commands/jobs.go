package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ldg-erp/duework/job"
)

// JobsCmd groups job inspection and management commands
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage scheduled jobs",
	Long: `Inspect and manage scheduled jobs.

Status filters:
  waiting   - Jobs due now, eligible to run
  delayed   - Jobs scheduled for a future time
  active    - Jobs currently being processed
  completed - Successfully completed jobs
  failed    - Jobs that exhausted their retries
  cancelled - Jobs cancelled before running

Examples:
  duework jobs ls                     # List recent jobs
  duework jobs ls --status delayed    # List only delayed jobs
  duework jobs status <id>            # Show job details
  duework jobs cancel <id>            # Cancel a pending job
  duework jobs stats                  # Show queue depth by status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		return runJobsLs(statusFilter, limit)
	},
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show details of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobsStatus(args[0])
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a waiting or delayed job",
	Long: `Cancel a job before it runs. Only waiting and delayed jobs can be
cancelled; active and finished jobs are left alone.

Example:
  duework jobs cancel 6f1c... --reason "invoice voided"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return runJobsCancel(args[0], reason)
	},
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue depth by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobsStats()
	},
}

func init() {
	jobsLsCmd.Flags().String("status", "", "Filter by status (waiting, delayed, active, completed, failed, cancelled)")
	jobsLsCmd.Flags().Int("limit", 20, "Maximum number of jobs to display")
	jobsCancelCmd.Flags().String("reason", "", "Reason recorded on the cancelled job")

	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsStatusCmd)
	JobsCmd.AddCommand(jobsCancelCmd)
	JobsCmd.AddCommand(jobsStatsCmd)
}

// openStore opens the database and wraps it in a job store
func openStore() (*job.Store, func() error, error) {
	database, err := openDatabase("")
	if err != nil {
		return nil, nil, err
	}
	return job.NewStore(database), database.Close, nil
}

func runJobsLs(statusFilter string, limit int) error {
	if statusFilter != "" && !job.IsValidStatus(statusFilter) {
		return fmt.Errorf("unknown status %q", statusFilter)
	}

	store, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	var status *job.Status
	if statusFilter != "" {
		s := job.Status(statusFilter)
		status = &s
	}

	jobs, err := store.ListJobs(status, limit)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-36s %-10s %-28s %-9s %s\n", "JOB ID", "STATUS", "KIND", "ATTEMPTS", "RUN AT")
	fmt.Printf("%-36s %-10s %-28s %-9s %s\n", "------", "------", "----", "--------", "------")

	for _, j := range jobs {
		fmt.Printf("%-36s %-10s %-28s %d/%-7d %s\n",
			j.ID,
			j.Status,
			truncate(j.Kind, 28),
			j.Attempts,
			j.MaxAttempts,
			j.RunAt.Local().Format("2006-01-02 15:04"))
	}

	fmt.Printf("\nTotal: %d job(s)\n", len(jobs))
	return nil
}

func runJobsStatus(jobID string) error {
	store, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	j, err := store.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	fmt.Printf("Job ID: %s\n", j.ID)
	fmt.Printf("  Kind: %s\n", j.Kind)
	fmt.Printf("  Status: %s\n", j.Status)
	fmt.Printf("  Attempts: %d/%d\n", j.Attempts, j.MaxAttempts)
	fmt.Printf("  Run at: %s\n", j.RunAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Println()

	if len(j.Payload) > 0 {
		fmt.Printf("Payload: %s\n", string(j.Payload))
	}
	if len(j.Result) > 0 {
		fmt.Printf("Result: %s\n", string(j.Result))
	}
	if j.LastError != "" {
		fmt.Printf("Last error: %s\n", j.LastError)
	}
	fmt.Println()

	fmt.Printf("Created: %s\n", j.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if j.StartedAt != nil {
		fmt.Printf("Started: %s\n", j.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if j.FinishedAt != nil {
		fmt.Printf("Finished: %s\n", j.FinishedAt.Local().Format("2006-01-02 15:04:05"))
	}

	return nil
}

func runJobsCancel(jobID, reason string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	queue := job.NewQueue(database, job.NewRegistry(), job.Options{}, nil)
	if err := queue.Cancel(context.Background(), jobID, reason); err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	fmt.Printf("Cancelled job %s\n", jobID)
	return nil
}

func runJobsStats() error {
	store, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	counts, err := store.CountByStatus()
	if err != nil {
		return fmt.Errorf("failed to count jobs: %w", err)
	}

	order := []job.Status{
		job.StatusWaiting, job.StatusDelayed, job.StatusActive,
		job.StatusCompleted, job.StatusFailed, job.StatusCancelled,
	}

	total := 0
	fmt.Println("Queue depth by status")
	for _, status := range order {
		fmt.Printf("  %-10s %d\n", status, counts[status])
		total += counts[status]
	}
	fmt.Printf("  %-10s %d\n", "total", total)

	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
