package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pventura/tidepool/internal/logger"
	"github.com/pventura/tidepool/pkg/config"
	"github.com/pventura/tidepool/pkg/database"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Apply pending schema migrations to the configured database.

Migrations are applied in ascending version order, one transaction per
migration. Running migrate against an up-to-date database is a no-op.

Use --down to roll back the most recent migration. Rollback only ever
happens through this explicit command, never automatically.

Examples:
  # Apply pending migrations
  tidepool migrate

  # Roll back the last migration
  tidepool migrate --down`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "Roll back the most recent migration")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx := context.Background()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if migrateDown {
		if err := pool.MigrateDown(ctx); err != nil {
			return err
		}
	} else {
		if err := pool.Migrate(ctx); err != nil {
			return err
		}
	}

	version, dirty, err := pool.MigrationVersion(ctx)
	if err != nil {
		return fmt.Errorf("migration verification failed: %w", err)
	}
	if dirty {
		logger.Warn("Schema is dirty after migration run")
	}

	fmt.Printf("Migrations completed successfully (schema version: %d)\n", version)
	return nil
}
