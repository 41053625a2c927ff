package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/services"
	"github.com/desertthunder/crossplay/internal/shared"
	"github.com/desertthunder/crossplay/internal/ui"
	"github.com/urfave/cli/v3"
)

// RoomOpen launches the interactive room view.
func (r *Runner) RoomOpen(ctx context.Context, cmd *cli.Command) error {
	code := cmd.StringArg("code")
	if code == "" {
		return fmt.Errorf("%w: room code", shared.ErrMissingArgument)
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, closer, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer closer.Close()
	shared.SetLogLevel(fileLogger, r.logger.GetLevel())
	r.SetLogger(fileLogger)

	userID, err := r.actor(ctx, cmd)
	if err != nil {
		return err
	}

	var catalog services.Catalog
	if provider, err := models.ParseProviderKey(cmd.String("provider")); err == nil {
		if catalog, err = r.catalog(ctx, provider, userID); err != nil {
			r.logger.Warn("search disabled", "provider", provider, "error", err)
			catalog = nil
		}
	}

	sync := r.newSync(ctx, userID, true)
	defer sync.Close()

	model := ui.NewModel(ctx, sync, catalog, code)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
