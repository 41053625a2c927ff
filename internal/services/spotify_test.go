package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/shared"
	"golang.org/x/oauth2"
)

type memoryTokens struct {
	mu     sync.Mutex
	tokens map[string]*oauth2.Token
	scopes map[string]string
	saves  int
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{tokens: map[string]*oauth2.Token{}, scopes: map[string]string{}}
}

func (m *memoryTokens) SaveToken(_ context.Context, userID string, provider models.ProviderKey, tok *oauth2.Token, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID + "/" + string(provider)
	m.tokens[key] = tok
	if scope != "" {
		m.scopes[key] = scope
	}
	m.saves++
	return nil
}

func (m *memoryTokens) Token(_ context.Context, userID string, provider models.ProviderKey) (*oauth2.Token, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID + "/" + string(provider)
	tok, ok := m.tokens[key]
	if !ok {
		return nil, "", shared.ErrNotAuthenticated
	}
	return tok, m.scopes[key], nil
}

func TestSpotifyOAuth(t *testing.T) {
	t.Run("Missing Client ID", func(t *testing.T) {
		_, err := NewSpotifyOAuthConfig(shared.SpotifyConfig{ClientSecret: "secret"})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Default Redirect URI", func(t *testing.T) {
		cfg, err := NewSpotifyOAuthConfig(shared.SpotifyConfig{ClientID: "id"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.RedirectURL != "http://127.0.0.1:8080/callback" {
			t.Errorf("unexpected redirect %s", cfg.RedirectURL)
		}
		if len(cfg.Scopes) != len(SpotifyScopes) {
			t.Errorf("expected %d scopes, got %d", len(SpotifyScopes), len(cfg.Scopes))
		}
	})

	t.Run("Auth URL Carries PKCE Challenge", func(t *testing.T) {
		cfg, _ := NewSpotifyOAuthConfig(shared.SpotifyConfig{ClientID: "id", RedirectURI: "http://localhost:9999/callback"})
		verifier := oauth2.GenerateVerifier()

		raw := SpotifyAuthURL(cfg, "state-123", verifier)
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("invalid auth url: %v", err)
		}

		q := u.Query()
		if q.Get("state") != "state-123" {
			t.Errorf("expected state, got %q", q.Get("state"))
		}
		if q.Get("code_challenge_method") != "S256" {
			t.Errorf("expected S256 challenge, got %q", q.Get("code_challenge_method"))
		}
		if q.Get("code_challenge") == "" || q.Get("code_challenge") == verifier {
			t.Error("expected a derived code challenge")
		}
		if !strings.Contains(q.Get("scope"), ScopeModifyPlayback) {
			t.Errorf("expected playback scope in %q", q.Get("scope"))
		}
	})

	t.Run("Exchange Sends Verifier", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			if r.Form.Get("code_verifier") != "verifier" {
				t.Errorf("expected code_verifier, got %q", r.Form.Get("code_verifier"))
			}
			if r.Form.Get("code") != "the-code" {
				t.Errorf("expected code, got %q", r.Form.Get("code"))
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"at","token_type":"Bearer","refresh_token":"rt","expires_in":3600,"scope":"user-modify-playback-state"}`))
		}))
		defer server.Close()

		cfg, _ := NewSpotifyOAuthConfig(shared.SpotifyConfig{ClientID: "id", ClientSecret: "secret"})
		cfg.Endpoint.TokenURL = server.URL

		tok, err := ExchangeSpotifyCode(context.Background(), cfg, "the-code", "verifier")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if tok.AccessToken != "at" || tok.RefreshToken != "rt" {
			t.Errorf("unexpected token %+v", tok)
		}
		if GrantedScope(tok) != ScopeModifyPlayback {
			t.Errorf("expected granted scope, got %q", GrantedScope(tok))
		}
	})

	t.Run("Exchange Failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
		}))
		defer server.Close()

		cfg, _ := NewSpotifyOAuthConfig(shared.SpotifyConfig{ClientID: "id"})
		cfg.Endpoint.TokenURL = server.URL

		if _, err := ExchangeSpotifyCode(context.Background(), cfg, "bad", "v"); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("App Client Requires Secret", func(t *testing.T) {
		_, err := NewSpotifyAppClient(context.Background(), shared.SpotifyConfig{ClientID: "id"})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}

func TestSpotifyTokenSource(t *testing.T) {
	t.Run("Not Connected", func(t *testing.T) {
		cfg, _ := NewSpotifyOAuthConfig(shared.SpotifyConfig{ClientID: "id"})
		_, _, err := NewSpotifyTokenSource(context.Background(), cfg, newMemoryTokens(), "user-1")
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("Valid Token Is Reused", func(t *testing.T) {
		store := newMemoryTokens()
		store.SaveToken(context.Background(), "user-1", models.ProviderSpotify,
			&oauth2.Token{AccessToken: "fresh", Expiry: time.Now().Add(time.Hour)}, ScopeModifyPlayback)
		store.saves = 0

		cfg, _ := NewSpotifyOAuthConfig(shared.SpotifyConfig{ClientID: "id"})
		src, scope, err := NewSpotifyTokenSource(context.Background(), cfg, store, "user-1")
		if err != nil {
			t.Fatal(err)
		}
		if scope != ScopeModifyPlayback {
			t.Errorf("expected stored scope, got %q", scope)
		}

		tok, err := src.Token()
		if err != nil || tok.AccessToken != "fresh" {
			t.Fatalf("unexpected token %v (%v)", tok, err)
		}
		if store.saves != 0 {
			t.Errorf("expected no writes for a reused token, got %d", store.saves)
		}
	})

	t.Run("Expired Token Is Refreshed And Persisted", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "rt" {
				t.Errorf("unexpected refresh form %v", r.Form)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"renewed","token_type":"Bearer","expires_in":3600}`))
		}))
		defer server.Close()

		store := newMemoryTokens()
		store.SaveToken(context.Background(), "user-1", models.ProviderSpotify,
			&oauth2.Token{AccessToken: "stale", RefreshToken: "rt", Expiry: time.Now().Add(-time.Minute)}, ScopeModifyPlayback)

		cfg, _ := NewSpotifyOAuthConfig(shared.SpotifyConfig{ClientID: "id", ClientSecret: "secret"})
		cfg.Endpoint.TokenURL = server.URL

		src, _, err := NewSpotifyTokenSource(context.Background(), cfg, store, "user-1")
		if err != nil {
			t.Fatal(err)
		}

		tok, err := src.Token()
		if err != nil {
			t.Fatalf("expected refresh, got %v", err)
		}
		if tok.AccessToken != "renewed" {
			t.Errorf("expected renewed token, got %s", tok.AccessToken)
		}

		saved, scope, _ := store.Token(context.Background(), "user-1", models.ProviderSpotify)
		if saved.AccessToken != "renewed" {
			t.Errorf("expected refreshed token persisted, got %s", saved.AccessToken)
		}
		if scope != ScopeModifyPlayback {
			t.Errorf("expected scope kept, got %q", scope)
		}
	})
}

func TestSpotifyCatalog(t *testing.T) {
	t.Run("Search", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/search" {
				t.Errorf("expected /search, got %s", r.URL.Path)
			}
			q := r.URL.Query()
			if q.Get("q") != "daft punk" || q.Get("type") != "track" || q.Get("limit") != "5" {
				t.Errorf("unexpected query %v", q)
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"tracks": map[string]any{
					"items": []map[string]any{
						{
							"id":            "4uLU6hMCjMI75M1A2tKUQC",
							"name":          "Digital Love",
							"uri":           "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
							"duration_ms":   301000,
							"artists":       []map[string]string{{"name": "Daft Punk"}, {"name": "DJ Sneak"}},
							"album":         map[string]string{"name": "Discovery"},
							"external_ids":  map[string]string{"isrc": "GBDUW0000059"},
							"external_urls": map[string]string{"spotify": "https://open.spotify.com/track/4uLU"},
						},
						{"id": "x", "name": "", "artists": []map[string]string{}},
					},
				},
			})
		}))
		defer server.Close()

		catalog := NewSpotifyCatalog(server.URL, nil, 0)
		if catalog.Provider() != models.ProviderSpotify {
			t.Errorf("unexpected provider %s", catalog.Provider())
		}

		tracks, err := catalog.Search(context.Background(), "  daft punk ")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(tracks))
		}

		first := tracks[0]
		if first.Title != "Digital Love" || first.Artist != "Daft Punk, DJ Sneak" {
			t.Errorf("unexpected track %+v", first)
		}
		if first.DurationMs != 301000 || first.ISRC != "GBDUW0000059" {
			t.Errorf("unexpected duration or isrc %+v", first)
		}
		if first.Providers.Spotify == nil || first.Providers.Spotify.URI != "spotify:track:4uLU6hMCjMI75M1A2tKUQC" {
			t.Errorf("expected spotify ref, got %+v", first.Providers.Spotify)
		}
		if tracks[1].Title != "Unknown" || tracks[1].Artist != "Unknown" {
			t.Errorf("expected placeholders for missing metadata, got %+v", tracks[1])
		}
	})

	t.Run("Empty Query", func(t *testing.T) {
		catalog := NewSpotifyCatalog("http://example.invalid", nil, 0)
		if _, err := catalog.Search(context.Background(), "   "); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Unauthorized", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"status":401,"message":"No token provided"}}`))
		}))
		defer server.Close()

		_, err := NewSpotifyCatalog(server.URL, nil, 0).Search(context.Background(), "x")
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})
}

type recordedRequest struct {
	method string
	path   string
	query  string
	body   string
}

func newPlayerServer(t *testing.T, status int, reply string) (*httptest.Server, func() []recordedRequest) {
	t.Helper()

	var mu sync.Mutex
	var seen []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mu.Lock()
		seen = append(seen, recordedRequest{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, body: string(body)})
		mu.Unlock()

		if reply != "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
	t.Cleanup(server.Close)

	return server, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), seen...)
	}
}

func TestSpotifyPlayer(t *testing.T) {
	t.Run("Commands", func(t *testing.T) {
		tests := []struct {
			name   string
			run    func(p *SpotifyPlayer) error
			method string
			path   string
			query  string
		}{
			{name: "Play", run: func(p *SpotifyPlayer) error { return p.Play(context.Background()) }, method: http.MethodPut, path: "/me/player/play"},
			{name: "Pause", run: func(p *SpotifyPlayer) error { return p.Pause(context.Background()) }, method: http.MethodPut, path: "/me/player/pause"},
			{name: "Next", run: func(p *SpotifyPlayer) error { return p.SkipNext(context.Background()) }, method: http.MethodPost, path: "/me/player/next"},
			{name: "Previous", run: func(p *SpotifyPlayer) error { return p.SkipPrevious(context.Background()) }, method: http.MethodPost, path: "/me/player/previous"},
			{name: "Seek", run: func(p *SpotifyPlayer) error { return p.SeekTo(context.Background(), 42000) }, method: http.MethodPut, path: "/me/player/seek", query: "position_ms=42000"},
			{name: "Seek Clamps Negative", run: func(p *SpotifyPlayer) error { return p.SeekTo(context.Background(), -5) }, method: http.MethodPut, path: "/me/player/seek", query: "position_ms=0"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				server, seen := newPlayerServer(t, http.StatusNoContent, "")
				if err := tt.run(NewSpotifyPlayer(server.URL, nil, ScopeModifyPlayback)); err != nil {
					t.Fatalf("expected no error, got %v", err)
				}

				reqs := seen()
				if len(reqs) != 1 {
					t.Fatalf("expected 1 request, got %d", len(reqs))
				}
				if reqs[0].method != tt.method || reqs[0].path != tt.path || reqs[0].query != tt.query {
					t.Errorf("unexpected request %+v", reqs[0])
				}
			})
		}
	})

	t.Run("SetQueue Without Autoplay Pauses", func(t *testing.T) {
		server, seen := newPlayerServer(t, http.StatusNoContent, "")
		player := NewSpotifyPlayer(server.URL, nil, ScopeModifyPlayback)

		if err := player.SetQueue(context.Background(), []string{"spotify:track:a"}, false); err != nil {
			t.Fatal(err)
		}

		reqs := seen()
		if len(reqs) != 2 {
			t.Fatalf("expected queue then pause, got %+v", reqs)
		}
		if reqs[0].path != "/me/player/play" || !strings.Contains(reqs[0].body, `"uris":["spotify:track:a"]`) {
			t.Errorf("unexpected queue request %+v", reqs[0])
		}
		if reqs[1].path != "/me/player/pause" {
			t.Errorf("expected pause, got %+v", reqs[1])
		}
	})

	t.Run("SetQueue With Autoplay", func(t *testing.T) {
		server, seen := newPlayerServer(t, http.StatusNoContent, "")
		player := NewSpotifyPlayer(server.URL, nil, ScopeModifyPlayback)

		if err := player.SetQueue(context.Background(), []string{"spotify:track:a"}, true); err != nil {
			t.Fatal(err)
		}
		if n := len(seen()); n != 1 {
			t.Errorf("expected only the queue request, got %d", n)
		}
	})

	t.Run("SetQueue Empty", func(t *testing.T) {
		player := NewSpotifyPlayer("http://example.invalid", nil, "")
		if err := player.SetQueue(context.Background(), nil, true); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Command Failure", func(t *testing.T) {
		server, _ := newPlayerServer(t, http.StatusNotFound, `{"error":{"reason":"NO_ACTIVE_DEVICE"}}`)
		err := NewSpotifyPlayer(server.URL, nil, ScopeModifyPlayback).Play(context.Background())

		if !errors.Is(err, shared.ErrNativeCommandFailed) {
			t.Errorf("expected ErrNativeCommandFailed, got %v", err)
		}
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected wrapped ErrAPIRequest, got %v", err)
		}
	})

	t.Run("NowPlaying Nothing Loaded", func(t *testing.T) {
		server, _ := newPlayerServer(t, http.StatusNoContent, "")
		np, err := NewSpotifyPlayer(server.URL, nil, "").NowPlaying(context.Background())
		if err != nil || np != nil {
			t.Errorf("expected nil, got %+v (%v)", np, err)
		}
	})

	t.Run("NowPlaying", func(t *testing.T) {
		server, _ := newPlayerServer(t, http.StatusOK,
			`{"is_playing":true,"progress_ms":12000,"item":{"id":"a","name":"Song","duration_ms":200000,"artists":[{"name":"Band"}],"album":{"name":"Record"}}}`)

		np, err := NewSpotifyPlayer(server.URL, nil, "").NowPlaying(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if np == nil {
			t.Fatal("expected now playing")
		}
		if np.Title != "Song" || np.AlbumTitle != "Record" || np.PositionMs != 12000 || np.PlaybackState != models.PlaybackPlaying {
			t.Errorf("unexpected now playing %+v", np)
		}
	})

	t.Run("RequestAuthorization", func(t *testing.T) {
		tests := []struct {
			scope string
			want  models.AuthorizationStatus
		}{
			{scope: "user-read-playback-state user-modify-playback-state", want: models.AuthorizationAuthorized},
			{scope: "user-read-playback-state", want: models.AuthorizationRestricted},
			{scope: "", want: models.AuthorizationRestricted},
		}

		for _, tt := range tests {
			got, err := NewSpotifyPlayer("", nil, tt.scope).RequestAuthorization(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("scope %q: expected %v, got %v", tt.scope, tt.want, got)
			}
		}
	})
}
