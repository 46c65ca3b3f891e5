package cli

import (
	"context"
	"fmt"
	"log/slog"

	"quiz-attempt-service/internal/config"
	pgmigrations "quiz-attempt-service/internal/infra/postgres/migrations"
	"quiz-attempt-service/internal/infra/sqlstore"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
}

func runMigrations(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	switch cfg.StorageDriver() {
	case "postgres":
		return runMigrationsWithConfig(ctx, cfg, logger)
	case "sqlite":
		// the SQLite schema is created on open
		db, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, cfg.SQLite.DSN)
		if err != nil {
			return err
		}
		logger.Info("sqlite schema ready")
		return db.Close()
	default:
		return fmt.Errorf("nothing to migrate for storage driver %q", cfg.StorageDriver())
	}
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db, err := sqlstore.Open(ctx, sqlstore.DriverPostgres, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		logger.Info("database is up to date")
		return nil
	}
	logger.Info("migrations applied", "group", group.String())
	return nil
}
