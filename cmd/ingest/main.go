package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seamline/ingest/cmd/ingest/commands"
	"github.com/seamline/ingest/logger"
	"github.com/seamline/ingest/version"
)

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Feed intake and item sync engine",
	Long: `ingest - batch feed processing and item synchronization.

Processes packet-framed feed files through a configurable ETL profile,
reconciles items against the previous delivery, and syncs the results
into the document store.

Available commands:
  process  - Process one feed file for a source
  db       - Manage the ingest database
  jobs     - Inspect queued notification jobs
  profiles - Inspect ETL mapping profiles

Examples:
  ingest process FTP1 jobs.txt     # Run one feed file
  ingest db migrate                # Apply pending schema migrations
  ingest jobs ls --status queued   # List queued notify jobs
  ingest profiles ls               # List registered ETL profiles`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonOutput); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs instead of console output")

	rootCmd.AddCommand(commands.ProcessCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.ProfilesCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	rootCmd.Version = version.Version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
