package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/crossplay/internal/formatter"
	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/shared"
	"github.com/urfave/cli/v3"
)

// Search queries a provider catalog and lists the matches.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	if query == "" {
		return fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}
	provider, err := models.ParseProviderKey(cmd.String("provider"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	catalog, err := r.catalog(ctx, provider, "")
	if err != nil {
		return err
	}

	r.logger.Debug("searching catalog", "provider", provider, "query", query)
	tracks, err := catalog.Search(ctx, query)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, cmd.Bool("pretty"))
	}

	if len(tracks) == 0 {
		return r.writePlain("No results for %q\n", query)
	}
	r.writePlainHeader(fmt.Sprintf("Results for %q on %s", query, provider))
	for i, t := range tracks {
		r.writePlain("%d. %s [%s] %s\n", i+1, t, formatter.FormatPosition(t.DurationMs), t.ProviderID(provider))
	}
	return nil
}

// AppleToken prints a developer token for the Apple Music API.
func (r *Runner) AppleToken(ctx context.Context, cmd *cli.Command) error {
	tokens, err := r.appleTokens()
	if err != nil {
		return err
	}
	token, err := tokens.DeveloperToken(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("%s\n", token)
}
