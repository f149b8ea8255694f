package cli

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/irb-determination-server/internal/config"
	"github.com/irb-determination-server/internal/database"
)

// ErrNoDatabase is returned by migrate when no database host is configured.
var ErrNoDatabase = errors.New("no database configured (set database.host or IRB_DATABASE_HOST)")

// NewMigrateCommand creates the migrate subcommand
func NewMigrateCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "migrate [up|down|version]",
		Short: "Apply or roll back the audit log and feedback schema",
		Long: `Manage the PostgreSQL schema used by the determination audit log and
reviewer feedback. The database is read from the server configuration
file and IRB_* environment variables.

  up       apply all pending migrations (default)
  down     roll back the most recent migration
  version  print the current schema version`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			if action != "up" && action != "down" && action != "version" {
				return fmt.Errorf("unknown migrate action %q", action)
			}

			var opts []config.Option
			if configFile != "" {
				opts = append(opts, config.WithConfigFile(configFile))
			}
			manager, err := config.NewManager(opts...)
			if err != nil {
				return err
			}
			if err := manager.Validate(); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}
			if !manager.DatabaseEnabled() {
				return ErrNoDatabase
			}

			logger := logrus.New()
			logger.SetOutput(cmd.ErrOrStderr())
			logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

			dbConfig := database.ConfigFrom(*manager.GetDatabaseConfig())
			runner, err := database.NewMigrationRunner(dbConfig.URL(), logger)
			if err != nil {
				return err
			}
			defer runner.Close()

			switch action {
			case "down":
				return runner.Down(cmd.Context())
			case "version":
				version, dirty, err := runner.Version()
				if err != nil {
					return fmt.Errorf("reading schema version: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			default:
				return runner.Up(cmd.Context())
			}
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "server configuration file")
	return cmd
}
