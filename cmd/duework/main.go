package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ldg-erp/duework/cmd/duework/commands"
	"github.com/ldg-erp/duework/logger"
)

var rootCmd = &cobra.Command{
	Use:   "duework",
	Short: "duework - deferred and recurring billing jobs",
	Long: `duework - durable job scheduling for invoicing workflows.

duework persists deferred jobs in SQLite and processes them with a
worker pool: payment reminders, recurring invoice generation, and
whatever handlers the application registers.

Available commands:
  start  - Run the worker daemon in the foreground
  jobs   - Inspect, cancel, and summarize scheduled jobs
  db     - Manage the duework database
  config - Show the effective configuration

Examples:
  duework start               # Start the daemon
  duework start --workers 3   # Start with 3 concurrent workers
  duework jobs ls             # List scheduled jobs
  duework jobs stats          # Show queue depth by status
  duework db migrate          # Apply pending schema migrations`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonOutput); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON instead of console output")

	rootCmd.AddCommand(commands.StartCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
