package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seamline/ingest/db"
	"github.com/seamline/ingest/docstore"
	"github.com/seamline/ingest/errors"
	"github.com/seamline/ingest/logger"
)

// ProfilesCmd groups ETL profile inspection and registration.
var ProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Inspect ETL mapping profiles",
	Long: `Inspect and register ETL mapping profiles.

Examples:
  ingest profiles ls                      # List registered profiles
  ingest profiles show acme-jobs          # Print a profile document
  ingest profiles save acme-jobs doc.json # Register or replace a profile`,
}

var profilesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List registered profiles",
	RunE:  runProfilesLs,
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Print a profile document",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesShow,
}

var profilesSaveCmd = &cobra.Command{
	Use:   "save <key> <file>",
	Short: "Register or replace a profile from a JSON document",
	Args:  cobra.ExactArgs(2),
	RunE:  runProfilesSave,
}

func init() {
	ProfilesCmd.AddCommand(profilesLsCmd)
	ProfilesCmd.AddCommand(profilesShowCmd)
	ProfilesCmd.AddCommand(profilesSaveCmd)
}

func openProfileStore(cmd *cobra.Command) (*docstore.Profiles, func(), error) {
	database, _, err := openConfiguredDatabase()
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}
	return docstore.NewProfiles(database), func() { database.Close() }, nil
}

func runProfilesLs(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openProfileStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	profiles, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Println("No profiles registered")
		return nil
	}

	fmt.Printf("%-24s  %s\n", "KEY", "ID")
	for key, id := range profiles {
		fmt.Printf("%-24s  %s\n", key, id)
	}
	return nil
}

func runProfilesShow(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openProfileStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	doc, err := store.GetProfileByKey(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	output, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding profile")
	}
	fmt.Println(string(output))
	return nil
}

func runProfilesSave(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[1])
	if err != nil {
		return errors.Wrapf(err, "reading %s", args[1])
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(content, &doc); err != nil {
		return errors.Wrap(err, "profile document must be a JSON object")
	}

	store, closeDB, err := openProfileStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	id, err := store.Save(cmd.Context(), args[0], doc)
	if err != nil {
		return err
	}
	fmt.Printf("Saved profile %s (id %s)\n", args[0], id)
	return nil
}
