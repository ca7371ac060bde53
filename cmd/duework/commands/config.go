package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/ldg-erp/duework/config"
)

// ConfigCmd groups configuration inspection commands
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective duework configuration",
	Long: `Inspect the merged configuration.

Configuration merges in precedence order:
  /etc/duework/config.toml < ~/.duework/config.toml < ./duework.toml < DUEWORK_* env

Examples:
  duework config show              # Print the effective configuration
  duework config show --format json
  duework config validate          # Check the configuration for errors
  duework config where             # Show which files are consulted`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var configFormat string

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for errors",
	RunE:  runConfigValidate,
}

var configWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show which configuration files are consulted",
	RunE:  runConfigWhere,
}

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format (toml, json)")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configValidateCmd)
	ConfigCmd.AddCommand(configWhereCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Println(string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Printf("# duework configuration\n%s", string(data))

	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json)", configFormat)
	}

	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Println("Configuration is valid")
	return nil
}

func runConfigWhere(cmd *cobra.Command, args []string) error {
	paths := []string{
		"/etc/duework/config.toml",
		config.UserConfigPath(),
	}

	fmt.Println("Configuration files (lowest to highest precedence):")
	for _, path := range paths {
		marker := "absent"
		if _, err := os.Stat(path); err == nil {
			marker = "present"
		}
		fmt.Printf("  %-40s %s\n", path, marker)
	}
	fmt.Println("  ./duework.toml (searched upward)      project")
	fmt.Println("\nEnvironment variables with the DUEWORK_ prefix override files.")

	return nil
}
