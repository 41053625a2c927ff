package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/crossplay/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file when missing, runs database migrations and registers the configured user.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", r.configPath)
		if err := shared.CreateConfigFile(r.configPath); err != nil {
			return err
		}
		r.writePlain("✓ Created %s\n", r.configPath)

		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return err
		}
		r.config = config
	}

	if r.config.Store.Driver != shared.DriverSupabase {
		r.logger.Info("initializing database", "path", r.config.Database.Path)
		db, err := shared.OpenDatabase(ctx, r.config.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		statuses, err := shared.Migrations(ctx, db)
		db.Close()
		if err != nil {
			return err
		}
		r.writePlain("✓ Database ready at %s (%d migrations)\n", r.config.Database.Path, len(statuses))
	}

	if _, err := r.username(cmd); err != nil {
		r.writePlain("→ Set [user] username in %s to register yourself\n", r.configPath)
		return nil
	}

	id, err := r.actor(ctx, cmd)
	if err != nil {
		return err
	}
	r.writePlain("✓ Registered user %s\n", id)
	return nil
}
