// Spotify Web API catalog search and Spotify Connect playback control
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/repositories"
	"github.com/desertthunder/crossplay/internal/roomsync"
	"github.com/desertthunder/crossplay/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// ScopeModifyPlayback grants Spotify Connect playback control.
	ScopeModifyPlayback = "user-modify-playback-state"

	// tokenExpirySkew refreshes access tokens this long before they expire.
	tokenExpirySkew = 60 * time.Second
)

// SpotifyScopes are requested during authorization.
var SpotifyScopes = []string{
	"user-read-playback-state",
	ScopeModifyPlayback,
	"user-read-currently-playing",
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Artists      []SpotifyArtist `json:"artists"`
	Album        SpotifyAlbum    `json:"album"`
	DurationMS   int64           `json:"duration_ms"`
	ExternalIDs  externalIDs     `json:"external_ids"`
	ExternalURLs externalURLs    `json:"external_urls"`
	URI          string          `json:"uri"`
}

type externalIDs struct {
	ISRC string `json:"isrc"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []SpotifyTrack `json:"items"`
	} `json:"tracks"`
}

type spotifyCurrentlyPlaying struct {
	IsPlaying  bool          `json:"is_playing"`
	ProgressMs int64         `json:"progress_ms"`
	Item       *SpotifyTrack `json:"item"`
}

// Universal maps a Spotify track to a [models.UniversalTrack] carrying only the Spotify reference.
func (t SpotifyTrack) Universal() models.UniversalTrack {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}

	return models.UniversalTrack{
		Title:      orUnknown(t.Name),
		Artist:     orUnknown(strings.Join(names, ", ")),
		DurationMs: max(t.DurationMS, 0),
		ISRC:       t.ExternalIDs.ISRC,
		Providers: models.TrackProviders{
			Spotify: &models.SpotifyRef{ID: t.ID, URI: t.URI, URL: t.ExternalURLs.Spotify},
		},
	}
}

// NewSpotifyOAuthConfig builds the authorization-code configuration for cfg.
func NewSpotifyOAuthConfig(cfg shared.SpotifyConfig) (*oauth2.Config, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: spotify client_id", shared.ErrMissingCredentials)
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://127.0.0.1:8080/callback"
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       SpotifyScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}, nil
}

// SpotifyAuthURL returns the consent URL for state with a PKCE S256 challenge derived from verifier.
func SpotifyAuthURL(cfg *oauth2.Config, state, verifier string) string {
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
}

// ExchangeSpotifyCode trades an authorization code for a token, proving possession of verifier.
func ExchangeSpotifyCode(ctx context.Context, cfg *oauth2.Config, code, verifier string) (*oauth2.Token, error) {
	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	return tok, nil
}

// GrantedScope returns the space-separated scope string the token response carried.
func GrantedScope(tok *oauth2.Token) string {
	if s, ok := tok.Extra("scope").(string); ok {
		return s
	}
	return ""
}

// TokenStore persists provider tokens per user.
type TokenStore interface {
	SaveToken(ctx context.Context, userID string, provider models.ProviderKey, tok *oauth2.Token, scope string) error
	Token(ctx context.Context, userID string, provider models.ProviderKey) (*oauth2.Token, string, error)
}

var _ TokenStore = (*repositories.LocalStore)(nil)

// persistingTokenSource writes every refreshed token back to the store.
type persistingTokenSource struct {
	mu     sync.Mutex
	src    oauth2.TokenSource
	store  TokenStore
	userID string
	last   string
	scope  string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tok, err := p.src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTokenExpired, err)
	}
	if tok.AccessToken != p.last {
		if err := p.store.SaveToken(context.Background(), p.userID, models.ProviderSpotify, tok, p.scope); err != nil {
			return nil, err
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}

// NewSpotifyTokenSource loads userID's stored Spotify token and returns a source that refreshes it
// before expiry and persists the result, along with the scope granted at authorization.
func NewSpotifyTokenSource(ctx context.Context, cfg *oauth2.Config, store TokenStore, userID string) (oauth2.TokenSource, string, error) {
	tok, scope, err := store.Token(ctx, userID, models.ProviderSpotify)
	if err != nil {
		return nil, "", err
	}

	src := oauth2.ReuseTokenSourceWithExpiry(tok, cfg.TokenSource(ctx, tok), tokenExpirySkew)
	return &persistingTokenSource{
		src:    src,
		store:  store,
		userID: userID,
		last:   tok.AccessToken,
		scope:  scope,
	}, scope, nil
}

// NewSpotifyAppClient returns an HTTP client authorized with the app's client-credentials grant.
// It can search the catalog but not control playback.
func NewSpotifyAppClient(ctx context.Context, cfg shared.SpotifyConfig) (*http.Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret", shared.ErrMissingCredentials)
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyTokenURL,
	}
	return cc.Client(ctx), nil
}

// SpotifyCatalog implements [Catalog] over the Spotify search endpoint.
type SpotifyCatalog struct {
	api *APIClient
}

var _ Catalog = (*SpotifyCatalog)(nil)

// NewSpotifyCatalog searches through client, which must attach Spotify credentials.
// An empty baseURL targets the public API.
func NewSpotifyCatalog(baseURL string, client *http.Client, perSecond float64) *SpotifyCatalog {
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}
	return &SpotifyCatalog{api: NewAPIClient(baseURL, client).WithLimiter(NewLimiter(perSecond))}
}

func (c *SpotifyCatalog) Provider() models.ProviderKey { return models.ProviderSpotify }

// Search queries /search for tracks.
func (c *SpotifyCatalog) Search(ctx context.Context, query string) ([]models.UniversalTrack, error) {
	query, err := validateQuery(query)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", fmt.Sprint(SearchLimit))

	var resp spotifySearchResponse
	if err := c.api.call(ctx, "spotify search", http.MethodGet, "/search", params, nil, &resp); err != nil {
		return nil, err
	}

	tracks := make([]models.UniversalTrack, 0, len(resp.Tracks.Items))
	for _, item := range resp.Tracks.Items {
		tracks = append(tracks, item.Universal())
	}
	return tracks, nil
}

// SpotifyPlayer controls the user's active Spotify Connect device.
type SpotifyPlayer struct {
	api   *APIClient
	scope string
}

var _ roomsync.PlaybackController = (*SpotifyPlayer)(nil)

// NewSpotifyPlayer controls playback through client, an HTTP client authorized with a user token
// whose granted scope is scope. An empty baseURL targets the public API.
func NewSpotifyPlayer(baseURL string, client *http.Client, scope string) *SpotifyPlayer {
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}
	return &SpotifyPlayer{api: NewAPIClient(baseURL, client), scope: scope}
}

func (p *SpotifyPlayer) Provider() models.ProviderKey { return models.ProviderSpotify }
func (p *SpotifyPlayer) Available() bool              { return p.api != nil }

// RequestAuthorization reports authorized only when playback control was granted.
func (p *SpotifyPlayer) RequestAuthorization(context.Context) (models.AuthorizationStatus, error) {
	if slices.Contains(strings.Fields(p.scope), ScopeModifyPlayback) {
		return models.AuthorizationAuthorized, nil
	}
	return models.AuthorizationRestricted, nil
}

// SetQueue replaces the playing context with ids. Spotify starts playback on any queue change,
// so a queue without autoplay is paused right after.
func (p *SpotifyPlayer) SetQueue(ctx context.Context, ids []string, autoplay bool) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: empty queue", shared.ErrInvalidArgument)
	}
	if err := p.command(ctx, "queue", http.MethodPut, "/me/player/play", nil, map[string]any{"uris": ids}); err != nil {
		return err
	}
	if autoplay {
		return nil
	}
	return p.Pause(ctx)
}

func (p *SpotifyPlayer) Play(ctx context.Context) error {
	return p.command(ctx, "play", http.MethodPut, "/me/player/play", nil, nil)
}

func (p *SpotifyPlayer) Pause(ctx context.Context) error {
	return p.command(ctx, "pause", http.MethodPut, "/me/player/pause", nil, nil)
}

func (p *SpotifyPlayer) SkipNext(ctx context.Context) error {
	return p.command(ctx, "next", http.MethodPost, "/me/player/next", nil, nil)
}

func (p *SpotifyPlayer) SkipPrevious(ctx context.Context) error {
	return p.command(ctx, "previous", http.MethodPost, "/me/player/previous", nil, nil)
}

func (p *SpotifyPlayer) SeekTo(ctx context.Context, ms int64) error {
	params := url.Values{}
	params.Set("position_ms", fmt.Sprint(max(ms, 0)))
	return p.command(ctx, "seek", http.MethodPut, "/me/player/seek", params, nil)
}

// NowPlaying reads /me/player/currently-playing; 204 means nothing is loaded.
func (p *SpotifyPlayer) NowPlaying(ctx context.Context) (*models.NowPlaying, error) {
	resp, err := p.api.Get(ctx, "/me/player/currently-playing", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: now playing: %w", shared.ErrNativeCommandFailed, err)
	}
	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		return nil, nil
	}
	if err := resp.Err("spotify player"); err != nil {
		return nil, fmt.Errorf("%w: now playing: %w", shared.ErrNativeCommandFailed, err)
	}

	var current spotifyCurrentlyPlaying
	if err := resp.Decode(&current); err != nil {
		return nil, err
	}
	if current.Item == nil {
		return nil, nil
	}

	track := current.Item.Universal()
	state := models.PlaybackPaused
	if current.IsPlaying {
		state = models.PlaybackPlaying
	}
	return &models.NowPlaying{
		Title:         track.Title,
		Artist:        track.Artist,
		AlbumTitle:    current.Item.Album.Name,
		DurationMs:    track.DurationMs,
		PositionMs:    current.ProgressMs,
		PlaybackState: state,
	}, nil
}

func (p *SpotifyPlayer) command(ctx context.Context, name, method, path string, query url.Values, body any) error {
	if err := p.api.call(ctx, "spotify player", method, path, query, body, nil); err != nil {
		return fmt.Errorf("%w: %s: %w", shared.ErrNativeCommandFailed, name, err)
	}
	return nil
}
