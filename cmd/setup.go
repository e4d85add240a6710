package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/moodtape/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the starter configuration file.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	r.writePlain("✓ Wrote %s\n", path)
	r.writePlain("Set OPENAI_API_KEY, SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET in the file, a .env file or the environment.\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations, or rolls back the latest one.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := r.Database()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if cmd.Bool("rollback") {
		if err := shared.RollbackMigration(db); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
	}

	version, applied, err := shared.CurrentVersion(db)
	if err != nil {
		return err
	}
	if !applied {
		return r.writePlain("Database %s has no migrations applied\n", r.config.Database.Path)
	}
	return r.writePlain("Database %s is at migration %04d\n", r.config.Database.Path, version)
}
