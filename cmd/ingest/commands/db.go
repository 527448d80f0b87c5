package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seamline/ingest/config"
	"github.com/seamline/ingest/db"
	"github.com/seamline/ingest/errors"
	"github.com/seamline/ingest/logger"
)

// DbCmd groups database maintenance operations.
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the ingest database",
	Long: `Manage ingest database operations.

Examples:
  ingest db migrate   # Apply pending schema migrations
  ingest db status    # Show schema version and table counts`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show schema version and row counts",
	RunE:  runDbStatus,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatusCmd)
}

func openConfiguredDatabase() (*sql.DB, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to load configuration")
	}
	database, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to open database")
	}
	return database, cfg.Database.Path, nil
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	database, path, err := openConfiguredDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, logger.Logger); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}
	fmt.Printf("Database %s is up to date\n", path)
	return nil
}

func runDbStatus(cmd *cobra.Command, args []string) error {
	database, path, err := openConfiguredDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	var version sql.NullString
	err = database.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "failed to read schema version")
	}
	if !version.Valid {
		version.String = "none"
	}

	fmt.Printf("Database:       %s\n", path)
	fmt.Printf("Schema version: %s\n", version.String)
	fmt.Println()

	tables := []struct{ label, query string }{
		{"Sources", `SELECT COUNT(*) FROM input_source`},
		{"Files", `SELECT COUNT(*) FROM input_source_file`},
		{"Receipts", `SELECT COUNT(*) FROM input_source_file_log`},
		{"Items", `SELECT COUNT(*) FROM input_item`},
		{"Documents", `SELECT COUNT(*) FROM item_documents`},
		{"Archived", `SELECT COUNT(*) FROM item_documents_archive`},
		{"Notify jobs", `SELECT COUNT(*) FROM notify_jobs`},
	}
	for _, table := range tables {
		var count int
		if err := database.QueryRow(table.query).Scan(&count); err != nil {
			return errors.Wrapf(err, "failed to count %s", table.label)
		}
		fmt.Printf("%-12s %d\n", table.label+":", count)
	}
	return nil
}
