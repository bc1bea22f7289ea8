package tasks

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DECODEproject/iotdashboard/pkg/logger"
	"github.com/DECODEproject/iotdashboard/pkg/migrations"
	"github.com/DECODEproject/iotdashboard/pkg/postgres"
	"github.com/DECODEproject/iotdashboard/pkg/version"
)

// defaultMigrationsDir is where new migration files are written, relative to
// the repository root. Files there are embedded into the binary at build.
var defaultMigrationsDir = "pkg/migrations/" + migrations.Dir

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateNewCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateUpCmd)

	migrateNewCmd.Flags().String("dir", defaultMigrationsDir, "Directory in which to create the migration pair")
	migrateDownCmd.Flags().IntP("steps", "s", 1, "Number of migrations to roll back")
	migrateDownCmd.Flags().Bool("all", false, "Roll back every migration, dropping all dashboard tables")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the dashboard's Postgres schema",
	Long: `Subcommands for managing the Postgres schema holding sensor readings,
intrusion events and cached TLS certificates.

The server applies any pending up migrations itself when it boots, so these
commands are mostly useful while developing a schema change.

Commands that touch the database read its connection string from
$` + DatabaseURLKey + `.`,
}

var migrateNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create an empty up/down migration pair",
	Long: fmt.Sprintf(`Creates an empty, timestamped pair of up and down SQL files in the
migrations directory. The name is converted to snake case, so for example:

    $ %s migrate new AddReadingsSourceIndex

creates <timestamp>_add_readings_source_index.up.sql and the matching
.down.sql. Rebuild the binary for the server to pick the new files up.`, version.BinaryName),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := cmd.Flags().GetString("dir")
		if err != nil {
			return err
		}

		return postgres.NewMigration(dir, args[0], logger.NewLogger(false))
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back applied migrations",
	Long: `Rolls back the most recently applied migrations. By default one step is
rolled back; use --steps to roll back more, or --all to remove the whole
schema. Rolling back the readings or events migrations deletes their data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		connStr, err := GetFromEnv(DatabaseURLKey)
		if err != nil {
			return err
		}

		steps, err := cmd.Flags().GetInt("steps")
		if err != nil {
			return err
		}

		all, err := cmd.Flags().GetBool("all")
		if err != nil {
			return err
		}

		db, err := postgres.Open(connStr)
		if err != nil {
			return err
		}
		defer db.Close()

		log := logger.NewLogger(false)

		if all {
			return postgres.MigrateDownAll(db.DB, log)
		}

		return postgres.MigrateDown(db.DB, steps, log)
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Long: `Applies every pending migration embedded in this binary. The server does
the same on boot; this command lets the schema be prepared ahead of a
deploy, or checked after writing a new migration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		connStr, err := GetFromEnv(DatabaseURLKey)
		if err != nil {
			return err
		}

		db, err := postgres.Open(connStr)
		if err != nil {
			return err
		}
		defer db.Close()

		return postgres.MigrateUp(db.DB, logger.NewLogger(false))
	},
}
