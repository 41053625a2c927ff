package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/repositories"
	"github.com/desertthunder/crossplay/internal/roomsync"
	"github.com/desertthunder/crossplay/internal/services"
	"github.com/desertthunder/crossplay/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// catalogRate throttles catalog searches issued from the CLI.
const catalogRate = 5.0

// Directory resolves usernames to user ids.
type Directory interface {
	ResolveUser(ctx context.Context, username string) (string, error)
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Backends are opened on first use so that commands like setup work without a store.
type Runner struct {
	config     *shared.Config
	configPath string
	store      roomsync.RoomStore
	users      Directory
	tokens     services.TokenStore
	controller roomsync.PlaybackController
	catalogs   map[models.ProviderKey]services.Catalog
	clock      func() time.Time
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	closers    []func() error
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Store, Users, Tokens, Controller and Catalogs override what the config would open.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Store      roomsync.RoomStore
	Users      Directory
	Tokens     services.TokenStore
	Controller roomsync.PlaybackController
	Catalogs   map[models.ProviderKey]services.Catalog
	Clock      func() time.Time
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Catalogs == nil {
		opts.Catalogs = make(map[models.ProviderKey]services.Catalog)
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		store:      opts.Store,
		users:      opts.Users,
		tokens:     opts.Tokens,
		controller: opts.Controller,
		catalogs:   opts.Catalogs,
		clock:      opts.Clock,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, roomCommand, searchCommand, appleCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// LoadConfig reads the file named by --config when it exists, keeping defaults otherwise.
func (r *Runner) LoadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}
	if r.configPath == "" {
		r.configPath = "config.toml"
	}

	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}

	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	} else {
		shared.SetLogLevel(r.logger, shared.ParseLogLevel(r.config.Log.Level))
	}
	return ctx, nil
}

// Close releases every backend the runner opened.
func (r *Runner) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// openStore opens the configured room store together with the user directory and token store.
//
// The redis driver keeps rooms in redis and users and tokens in the local database.
func (r *Runner) openStore(ctx context.Context) error {
	if r.store != nil && r.users != nil && r.tokens != nil {
		return nil
	}

	switch r.config.Store.Driver {
	case shared.DriverSupabase:
		store, err := services.NewSupabaseStore(r.config.Supabase, r.httpClient, shared.WithLogger(r.logger, "store", "supabase"))
		if err != nil {
			return err
		}
		r.fill(store, store, store)
		return nil

	case shared.DriverRedis:
		local, err := r.openLocal(ctx)
		if err != nil {
			return err
		}
		rdb, err := repositories.OpenRedis(ctx, r.config.Redis)
		if err != nil {
			return err
		}
		r.closers = append(r.closers, rdb.Close)
		r.fill(repositories.NewRedisStore(rdb, shared.WithLogger(r.logger, "store", "redis")), local, local)
		return nil

	default:
		local, err := r.openLocal(ctx)
		if err != nil {
			return err
		}
		r.fill(local, local, local)
		return nil
	}
}

func (r *Runner) openLocal(ctx context.Context) (*repositories.LocalStore, error) {
	db, err := shared.OpenDatabase(ctx, r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	r.closers = append(r.closers, db.Close)
	return repositories.NewLocalStore(db, shared.WithLogger(r.logger, "store", "sqlite")), nil
}

func (r *Runner) fill(store roomsync.RoomStore, users Directory, tokens services.TokenStore) {
	if r.store == nil {
		r.store = store
	}
	if r.users == nil {
		r.users = users
	}
	if r.tokens == nil {
		r.tokens = tokens
	}
}

// username picks --user over the configured username.
func (r *Runner) username(cmd *cli.Command) (string, error) {
	name := cmd.String("user")
	if name == "" {
		name = r.config.User.Username
	}
	username, err := models.NormalizeUsername(name)
	if err != nil {
		return "", fmt.Errorf("%w: set [user] username in %s or pass --user", shared.ErrMissingArgument, r.configPath)
	}
	return username, nil
}

// actor opens the store and resolves the acting user's id.
func (r *Runner) actor(ctx context.Context, cmd *cli.Command) (string, error) {
	if err := r.openStore(ctx); err != nil {
		return "", err
	}
	username, err := r.username(cmd)
	if err != nil {
		return "", err
	}

	id, err := r.users.ResolveUser(ctx, username)
	if err != nil {
		return "", fmt.Errorf("failed to resolve user %s: %w", username, err)
	}
	r.logger.Debug("resolved user", "username", username, "id", id)
	return id, nil
}

// newSync builds a [roomsync.Sync] for userID over the opened store.
func (r *Runner) newSync(ctx context.Context, userID string, reconcile bool) *roomsync.Sync {
	return roomsync.New(roomsync.Options{
		Store:            r.store,
		Controller:       r.playbackController(ctx, userID),
		ActorUserID:      userID,
		Clock:            r.clock,
		TickInterval:     r.config.Sync.TickInterval(),
		ResyncInterval:   r.config.Sync.ResyncInterval(),
		DriftToleranceMs: int64(r.config.Sync.DriftToleranceMs),
		Reconcile:        reconcile && r.config.Sync.Reconcile,
		Logger:           shared.WithLogger(r.logger, "component", "roomsync"),
	})
}

// playbackController returns the configured device controller. A controller that cannot be
// built degrades to [roomsync.NoopController] with a warning, so rooms still work without a device.
func (r *Runner) playbackController(ctx context.Context, userID string) roomsync.PlaybackController {
	if r.controller != nil {
		return r.controller
	}

	switch r.config.Playback.Controller {
	case shared.ControllerSpotify:
		client, scope, err := r.spotifyUserClient(ctx, userID)
		if err != nil {
			r.logger.Warn("spotify playback unavailable; run `crossplay auth spotify`", "error", err)
			break
		}
		r.controller = services.NewSpotifyPlayer("", client, scope)
	case shared.ControllerApple:
		r.controller = services.NewAppleMusicRemote(r.config.Credentials.Apple.RemoteURL, r.httpClient)
	}

	if r.controller == nil {
		r.controller = roomsync.NoopController{}
	}
	return r.controller
}

// spotifyUserClient returns an HTTP client carrying userID's refreshed Spotify token.
func (r *Runner) spotifyUserClient(ctx context.Context, userID string) (*http.Client, string, error) {
	cfg, err := services.NewSpotifyOAuthConfig(r.config.Credentials.Spotify)
	if err != nil {
		return nil, "", err
	}
	src, scope, err := services.NewSpotifyTokenSource(ctx, cfg, r.tokens, userID)
	if err != nil {
		return nil, "", err
	}
	return oauth2.NewClient(ctx, src), scope, nil
}

// catalog returns the search backend for provider.
//
// Spotify searches with the user's token when one is stored and the app's client credentials
// otherwise. Apple Music signs developer tokens locally when a key is configured and asks the
// hosted token function otherwise.
func (r *Runner) catalog(ctx context.Context, provider models.ProviderKey, userID string) (services.Catalog, error) {
	if c, ok := r.catalogs[provider]; ok {
		return c, nil
	}

	var c services.Catalog
	switch provider {
	case models.ProviderSpotify:
		var client *http.Client
		if userID != "" && r.tokens != nil {
			if c, _, err := r.spotifyUserClient(ctx, userID); err == nil {
				client = c
			}
		}
		if client == nil {
			c, err := services.NewSpotifyAppClient(ctx, r.config.Credentials.Spotify)
			if err != nil {
				return nil, err
			}
			client = c
		}
		c = services.NewSpotifyCatalog("", client, catalogRate)

	case models.ProviderAppleMusic:
		tokens, err := r.appleTokens()
		if err != nil {
			return nil, err
		}
		apple := r.config.Credentials.Apple
		c = services.NewAppleCatalog("", r.httpClient, tokens, apple.Storefront, catalogRate)

	default:
		return nil, fmt.Errorf("%w: unknown provider %q", shared.ErrInvalidArgument, provider)
	}

	r.catalogs[provider] = c
	return c, nil
}

func (r *Runner) appleTokens() (services.DeveloperTokenSource, error) {
	apple := r.config.Credentials.Apple
	if apple.PrivateKeyPath != "" {
		return services.NewAppleTokenSigner(apple)
	}
	if r.config.Supabase.URL == "" || r.config.Supabase.AnonKey == "" {
		return nil, fmt.Errorf("%w: configure [credentials.apple] or [supabase]", shared.ErrMissingCredentials)
	}
	return services.NewFunctionTokenSource(r.config.Supabase, r.httpClient), nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
