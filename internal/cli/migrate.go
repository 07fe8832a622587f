package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}
	logger := newLogger(cfg)
	ctx := cmd.Context()

	db, err := database.Connect(ctx, cfg.DatabaseURL, database.Options{Development: cfg.Development()}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	logger.Info("schema is up to date")
	return nil
}
