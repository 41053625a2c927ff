package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/server"
	"github.com/desertthunder/crossplay/internal/services"
	"github.com/desertthunder/crossplay/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authTimeout = 2 * time.Minute

// ConnectionStatus describes one provider connection of the current user.
type ConnectionStatus struct {
	Provider      models.ProviderKey `json:"provider"`
	Connected     bool               `json:"connected"`
	Scope         string             `json:"scope,omitempty"`
	Expiry        time.Time          `json:"expiry,omitzero"`
	Authorization string             `json:"authorization,omitempty"`
}

type disconnector interface {
	Disconnect(ctx context.Context, userID string, provider models.ProviderKey) error
}

// AuthSpotify runs the PKCE authorization flow and stores the resulting token for the current user.
func (r *Runner) AuthSpotify(ctx context.Context, cmd *cli.Command) error {
	userID, err := r.actor(ctx, cmd)
	if err != nil {
		return err
	}

	cfg, err := services.NewSpotifyOAuthConfig(r.config.Credentials.Spotify)
	if err != nil {
		return err
	}

	tok, err := r.doOAuth(ctx, cfg, "Spotify")
	if err != nil {
		return err
	}

	scope := services.GrantedScope(tok)
	if err := r.tokens.SaveToken(ctx, userID, models.ProviderSpotify, tok, scope); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	r.logger.Info("spotify connected", "user", userID, "scope", scope)
	return r.writePlain("✓ Spotify connected\n")
}

// doOAuth serves the redirect URI locally, opens the consent page and waits for the callback.
func (r *Runner) doOAuth(ctx context.Context, cfg *oauth2.Config, provider string) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	addr := r.config.Server.Addr()
	if u, err := url.Parse(cfg.RedirectURL); err == nil && u.Host != "" {
		addr = u.Host
	}

	handler := server.NewOAuthHandler(server.PKCEExchanger(cfg, verifier), state, provider)
	router := server.NewBasicRouter()
	router.Use(server.Logging(r.logger))
	router.Handler(handler)

	srv, err := server.StartCallbackServer(addr, router, r.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := services.SpotifyAuthURL(cfg, state, verifier)
	r.writePlain("→ Opening browser for %s authorization...\n", provider)
	if err := shared.OpenURL(ctx, authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case err, ok := <-srv.Errors():
		if !ok {
			err = errors.New("callback server stopped")
		}
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}
	return result.Token, nil
}

// AuthStatus lists the current user's provider connections and the playback controller's authorization.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	userID, err := r.actor(ctx, cmd)
	if err != nil {
		return err
	}

	var statuses []ConnectionStatus
	for _, provider := range []models.ProviderKey{models.ProviderSpotify, models.ProviderAppleMusic} {
		status := ConnectionStatus{Provider: provider}
		tok, scope, err := r.tokens.Token(ctx, userID, provider)
		switch {
		case err == nil && tok != nil:
			status.Connected = true
			status.Scope = scope
			status.Expiry = tok.Expiry
		case err != nil && !errors.Is(err, shared.ErrNotAuthenticated):
			return fmt.Errorf("failed to read %s connection: %w", provider, err)
		}
		statuses = append(statuses, status)
	}

	ctrl := r.playbackController(ctx, userID)
	if ctrl.Available() {
		auth, err := ctrl.RequestAuthorization(ctx)
		if err != nil {
			r.logger.Warn("authorization check failed", "provider", ctrl.Provider(), "error", err)
		}
		for i := range statuses {
			if statuses[i].Provider == ctrl.Provider() {
				statuses[i].Authorization = auth.String()
			}
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(statuses, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Connections")
	for _, s := range statuses {
		mark := "✗"
		if s.Connected {
			mark = "✓"
		}
		r.writePlain("%s %-12s", mark, s.Provider)
		if s.Authorization != "" {
			r.writePlain(" playback: %s", s.Authorization)
		}
		if !s.Expiry.IsZero() {
			r.writePlain(" (token expires %s)", s.Expiry.Local().Format(time.Kitchen))
		}
		r.writePlain("\n")
	}
	return nil
}

// AuthDisconnect removes the current user's stored token for a provider.
func (r *Runner) AuthDisconnect(ctx context.Context, cmd *cli.Command) error {
	provider, err := models.ParseProviderKey(cmd.StringArg("provider"))
	if err != nil {
		return err
	}

	userID, err := r.actor(ctx, cmd)
	if err != nil {
		return err
	}

	d, ok := r.tokens.(disconnector)
	if !ok {
		return fmt.Errorf("%w: disconnect with the %s store", shared.ErrNotImplemented, r.config.Store.Driver)
	}
	if err := d.Disconnect(ctx, userID, provider); err != nil {
		return err
	}
	return r.writePlain("✓ Disconnected %s\n", provider)
}
