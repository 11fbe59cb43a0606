package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/desertthunder/tubeq/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the embedded example config to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", r.configPath)
	r.writePlain("✓ Wrote %s\n", r.configPath)
	r.writePlain("Secrets belong in .env: %sREDIS_URL, %sMINIO_ACCESS_KEY, %sMINIO_SECRET_KEY, %sWEBHOOK_URL\n",
		shared.EnvPrefix, shared.EnvPrefix, shared.EnvPrefix, shared.EnvPrefix)
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Info("config file not found, using defaults", "path", r.configPath)
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	pending, err := shared.PendingMigrations(db)
	if err != nil {
		return err
	}
	for _, m := range pending {
		r.logger.Info("applying migration", "version", m.Version, "name", m.Name)
	}
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return nil
}

// SetupRollback reverts the most recent migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return err
	}
	r.logger.Info("rolled back latest migration", "path", r.config.Database.Path)
	return nil
}

func (r *Runner) openDatabase() (*sql.DB, error) {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	return db, nil
}
