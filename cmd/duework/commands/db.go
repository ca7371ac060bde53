package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ldg-erp/duework/config"
)

// DbCmd groups database maintenance commands
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the duework database",
	Long: `Manage database operations.

Examples:
  duework db migrate   # Apply pending schema migrations
  duework db stats     # Show table counts and database info`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	// openDatabase migrates as a side effect
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	var version int
	err = database.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	fmt.Printf("Database is at schema version %d\n", version)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Println("Database Statistics")
	fmt.Printf("Database path: %s\n\n", cfg.GetDatabasePath())

	tables := []string{"jobs", "invoices", "invoice_items", "activities"}
	for _, table := range tables {
		var count int
		err := database.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&count)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to count %s: %w", table, err)
		}
		fmt.Printf("  %-15s %d\n", table, count)
	}

	return nil
}
