package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/crossplay/internal/formatter"
	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/services"
	"github.com/desertthunder/crossplay/internal/shared"
	"github.com/desertthunder/crossplay/internal/tasks"
	tu "github.com/desertthunder/crossplay/internal/testing"
	"golang.org/x/oauth2"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeDirectory map[string]string

func (d fakeDirectory) ResolveUser(_ context.Context, username string) (string, error) {
	if id, ok := d[username]; ok {
		return id, nil
	}
	return "", errors.New("unknown user")
}

type fakeTokens struct {
	saved map[models.ProviderKey]*oauth2.Token
}

func (f *fakeTokens) SaveToken(_ context.Context, _ string, provider models.ProviderKey, tok *oauth2.Token, _ string) error {
	f.saved[provider] = tok
	return nil
}

func (f *fakeTokens) Token(_ context.Context, _ string, provider models.ProviderKey) (*oauth2.Token, string, error) {
	if tok, ok := f.saved[provider]; ok {
		return tok, "user-read-playback-state", nil
	}
	return nil, "", shared.ErrNotAuthenticated
}

type fakeCatalog struct {
	tracks  []models.UniversalTrack
	err     error
	queries []string
}

func (c *fakeCatalog) Provider() models.ProviderKey { return models.ProviderSpotify }

func (c *fakeCatalog) Search(_ context.Context, q string) ([]models.UniversalTrack, error) {
	c.queries = append(c.queries, q)
	return c.tracks, c.err
}

var _ services.Catalog = (*fakeCatalog)(nil)

func song(title, artist, id string) models.UniversalTrack {
	return models.UniversalTrack{
		Title:      title,
		Artist:     artist,
		DurationMs: 180_000,
		Providers:  models.TrackProviders{Spotify: &models.SpotifyRef{ID: id}},
	}
}

type fixture struct {
	store   *tu.MockStore
	ctrl    *tu.MockController
	catalog *fakeCatalog
	tokens  *fakeTokens
	clock   *tu.Clock
	out     *tu.SyncBuffer
	logs    *tu.SyncBuffer
	runner  *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	room := models.NewRoomState("room-1", "AB12CD", "user-1", t0)
	track := song("One More Time", "Daft Punk", "abc")
	room.CurrentTrack = &track

	f := &fixture{
		store: tu.NewMockStore(room),
		ctrl:  tu.NewMockController(models.ProviderSpotify),
		catalog: &fakeCatalog{tracks: []models.UniversalTrack{
			song("Around the World", "Daft Punk", "atw"),
			song("Digital Love", "Daft Punk", "dl"),
		}},
		tokens: &fakeTokens{saved: map[models.ProviderKey]*oauth2.Token{}},
		clock:  tu.NewClock(t0),
		out:    &tu.SyncBuffer{},
		logs:   &tu.SyncBuffer{},
	}
	f.runner = NewRunner(RunnerOpts{
		ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
		Store:      f.store,
		Users:      fakeDirectory{"alice": "user-1"},
		Tokens:     f.tokens,
		Controller: f.ctrl,
		Catalogs:   map[models.ProviderKey]services.Catalog{models.ProviderSpotify: f.catalog},
		Clock:      f.clock.Now,
		Logger:     shared.NewLogger(f.logs),
		Output:     f.out,
	})
	return f
}

// run executes args as the user alice against the fixture.
func (f *fixture) run(t *testing.T, args ...string) error {
	t.Helper()
	argv := append([]string{"crossplay", "-c", f.runner.configPath, "-u", "alice"}, args...)
	return newApp(f.runner).Run(context.Background(), argv)
}

func (f *fixture) room(t *testing.T) models.RoomState {
	t.Helper()
	room, ok := f.store.Room("room-1")
	if !ok {
		t.Fatal("room-1 missing from store")
	}
	return room
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			store := tu.NewMockStore()
			ctrl := tu.NewMockController(models.ProviderSpotify)

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Store:      store,
				Controller: ctrl,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.store != store {
				t.Error("expected store to be set")
			}
			if runner.controller != ctrl {
				t.Error("expected controller to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
			if runner.clock == nil || runner.catalogs == nil {
				t.Error("expected clock and catalogs to be initialized")
			}
		})
	})

	t.Run("Output Writers", func(t *testing.T) {
		t.Run("writeJSON surfaces write errors", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
			if err := runner.writeJSON(map[string]string{"room": "AB12CD"}, false); err == nil {
				t.Error("expected error from failing writer")
			}
		})

		t.Run("writePlain stops at the writer limit", func(t *testing.T) {
			var buf bytes.Buffer
			w := tu.NewLimitedWriter(1, 0, &buf)
			runner := NewRunner(RunnerOpts{Output: &w})

			if err := runner.writePlainln("Room %s", "AB12CD"); err != nil {
				t.Fatalf("first write: %v", err)
			}
			if err := runner.writePlain("second\n"); err == nil {
				t.Error("expected error once the limit is reached")
			}
			if got := buf.String(); got != "\nRoom AB12CD\n" {
				t.Errorf("output = %q", got)
			}
		})
	})

	t.Run("LoadConfig", func(t *testing.T) {
		t.Run("reads the config file", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := shared.CreateConfigFile(path); err != nil {
				t.Fatalf("CreateConfigFile() error = %v", err)
			}
			data := strings.Replace(tu.MustReadFile(t, path), `username = ""`, `username = "alice"`, 1)
			if err := os.WriteFile(path, []byte(data), 0644); err != nil {
				t.Fatal(err)
			}

			f := newFixture(t)
			f.runner.configPath = path
			if err := newApp(f.runner).Run(context.Background(), []string{"crossplay", "-c", path, "room", "show", "AB12CD"}); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if f.runner.config.User.Username != "alice" {
				t.Errorf("username = %q, want alice", f.runner.config.User.Username)
			}
		})

		t.Run("invalid config fails", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte("[store]\ndriver = \"postgres\"\n"), 0644); err != nil {
				t.Fatal(err)
			}

			f := newFixture(t)
			err := newApp(f.runner).Run(context.Background(), []string{"crossplay", "-c", path, "room", "show", "AB12CD"})
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("Run() error = %v, want ErrInvalidConfig", err)
			}
		})

		t.Run("missing username", func(t *testing.T) {
			f := newFixture(t)
			err := newApp(f.runner).Run(context.Background(), []string{"crossplay", "-c", f.runner.configPath, "room", "show", "AB12CD"})
			if !errors.Is(err, shared.ErrMissingArgument) {
				t.Errorf("Run() error = %v, want ErrMissingArgument", err)
			}
		})
	})
}

func TestRoomCommands(t *testing.T) {
	t.Run("show", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run(t, "room", "show", "ab12cd"); err != nil {
			t.Fatalf("room show error = %v", err)
		}
		out := f.out.String()
		for _, want := range []string{"Room AB12CD", "Daft Punk - One More Time", "paused", "0:00 / 3:00"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("show json", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run(t, "room", "show", "--json", "AB12CD"); err != nil {
			t.Fatalf("room show error = %v", err)
		}
		var view RoomView
		if err := json.Unmarshal(f.out.Bytes(), &view); err != nil {
			t.Fatalf("invalid JSON output: %v\n%s", err, f.out.String())
		}
		if view.Room.ID != "room-1" || view.Confirmation != "confirmed" {
			t.Errorf("view = %+v", view)
		}
	})

	t.Run("unknown room", func(t *testing.T) {
		f := newFixture(t)
		err := f.run(t, "room", "show", "ZZ99ZZ")
		if !errors.Is(err, shared.ErrRoomNotFound) {
			t.Errorf("error = %v, want ErrRoomNotFound", err)
		}
	})

	t.Run("missing code", func(t *testing.T) {
		f := newFixture(t)
		err := f.run(t, "room", "show")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("error = %v, want ErrMissingArgument", err)
		}
	})

	t.Run("play then pause", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run(t, "room", "play", "AB12CD"); err != nil {
			t.Fatalf("room play error = %v", err)
		}
		if !f.room(t).IsPlaying {
			t.Fatal("expected room to be playing")
		}
		if !strings.Contains(f.out.String(), "playing") {
			t.Errorf("output = %q", f.out.String())
		}

		f.clock.Advance(5 * time.Second)
		if err := f.run(t, "room", "pause", "AB12CD"); err != nil {
			t.Fatalf("room pause error = %v", err)
		}
		room := f.room(t)
		if room.IsPlaying {
			t.Error("expected room to be paused")
		}
		if room.PositionMs != 5000 {
			t.Errorf("position = %d, want 5000", room.PositionMs)
		}

		kinds := []models.EventType{}
		for _, e := range f.store.Events() {
			kinds = append(kinds, e.Type)
			if e.ActorUserID != "user-1" {
				t.Errorf("event actor = %q, want user-1", e.ActorUserID)
			}
		}
		if len(kinds) != 2 {
			t.Errorf("events = %v, want 2", kinds)
		}
		if calls := f.ctrl.Calls(); !slices.Contains(calls, "play") || !slices.Contains(calls, "pause") {
			t.Errorf("device calls = %v, want play and pause", calls)
		}
	})

	t.Run("play is idempotent", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run(t, "room", "play", "AB12CD"); err != nil {
			t.Fatal(err)
		}
		if err := f.run(t, "room", "play", "AB12CD"); err != nil {
			t.Fatal(err)
		}
		if n := len(f.store.Events()); n != 1 {
			t.Errorf("events = %d, want 1", n)
		}
	})

	t.Run("denied authorization fails play", func(t *testing.T) {
		f := newFixture(t)
		f.ctrl.Status = models.AuthorizationDenied
		err := f.run(t, "room", "play", "AB12CD")
		if !errors.Is(err, shared.ErrAuthorizationDenied) {
			t.Fatalf("error = %v, want ErrAuthorizationDenied", err)
		}
		if f.room(t).IsPlaying {
			t.Error("expected the room to stay paused")
		}
	})

	t.Run("toggle", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run(t, "room", "toggle", "AB12CD"); err != nil {
			t.Fatalf("room toggle error = %v", err)
		}
		if !f.room(t).IsPlaying {
			t.Error("expected toggle to start playback")
		}
	})

	t.Run("device failure is reported, not fatal", func(t *testing.T) {
		f := newFixture(t)
		f.ctrl.Errs = map[string]error{"play": errors.New("no active device")}
		if err := f.run(t, "room", "play", "AB12CD"); err != nil {
			t.Fatalf("room play error = %v", err)
		}
		if !f.room(t).IsPlaying {
			t.Error("expected the room to be updated")
		}
		if !strings.Contains(f.out.String(), "Play failed on this device") {
			t.Errorf("output missing device notice:\n%s", f.out.String())
		}
	})
}

func TestRoomSeek(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    int64
		wantErr error
	}{
		{name: "forward", args: []string{"--by", "30s"}, want: 30_000},
		{name: "backward clamps", args: []string{"--by=-10s"}, want: 0},
		{name: "absolute", args: []string{"--to", "1m30s"}, want: 90_000},
		{name: "past the end clamps", args: []string{"--to", "10m"}, want: 180_000},
		{name: "both", args: []string{"--by", "1s", "--to", "1s"}, wantErr: shared.ErrInvalidArgument},
		{name: "neither", args: nil, wantErr: shared.ErrMissingArgument},
		{name: "negative absolute", args: []string{"--to=-1s"}, wantErr: shared.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			args := append([]string{"room", "seek"}, tt.args...)
			err := f.run(t, append(args, "AB12CD")...)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				if f.store.UpdateCount() != 0 {
					t.Error("expected no store write")
				}
				return
			}
			if err != nil {
				t.Fatalf("room seek error = %v", err)
			}
			if got := f.room(t).PositionMs; got != tt.want {
				t.Errorf("position = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRoomTrack(t *testing.T) {
	t.Run("picks a search result", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run(t, "room", "track", "-q", "daft punk", "--pick", "2", "AB12CD"); err != nil {
			t.Fatalf("room track error = %v", err)
		}
		if !slices.Equal(f.catalog.queries, []string{"daft punk"}) {
			t.Errorf("queries = %v", f.catalog.queries)
		}
		room := f.room(t)
		if room.CurrentTrack == nil || room.CurrentTrack.Title != "Digital Love" {
			t.Fatalf("track = %+v, want Digital Love", room.CurrentTrack)
		}
		if room.PositionMs != 0 {
			t.Errorf("position = %d, want 0", room.PositionMs)
		}
	})

	t.Run("pick out of range", func(t *testing.T) {
		f := newFixture(t)
		err := f.run(t, "room", "track", "-q", "daft punk", "--pick", "3", "AB12CD")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("error = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		f := newFixture(t)
		err := f.run(t, "room", "track", "-q", "x", "-p", "tidal", "AB12CD")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("error = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("search failure", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.err = shared.ErrServiceUnavailable
		err := f.run(t, "room", "track", "-q", "x", "AB12CD")
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("error = %v, want ErrServiceUnavailable", err)
		}
	})
}

func TestRoomCreateAndJoin(t *testing.T) {
	f := newFixture(t)
	if err := f.run(t, "room", "create", "--json"); err != nil {
		t.Fatalf("room create error = %v", err)
	}

	var created models.RoomState
	if err := json.Unmarshal(f.out.Bytes(), &created); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if !shared.ValidRoomCode(created.RoomCode) {
		t.Errorf("room code = %q", created.RoomCode)
	}
	if created.HostUserID != "user-1" || created.IsPlaying || created.PositionMs != 0 {
		t.Errorf("created = %+v", created)
	}
	if !slices.Contains(f.store.Members(created.ID), "user-1") {
		t.Error("expected host to be a member")
	}

	f.out.Reset()
	if err := f.run(t, "room", "join", "AB12CD"); err != nil {
		t.Fatalf("room join error = %v", err)
	}
	if !slices.Contains(f.store.Members("room-1"), "user-1") {
		t.Error("expected user to join room-1")
	}
	if !strings.Contains(f.out.String(), "Joined room AB12CD") {
		t.Errorf("output = %q", f.out.String())
	}
}

func TestRoomWatch(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		argv := []string{"crossplay", "-c", f.runner.configPath, "-u", "alice", "room", "watch", "--no-reconcile", "AB12CD"}
		done <- newApp(f.runner).Run(ctx, argv)
	}()

	tu.Eventually(t, 2*time.Second, func() bool { return f.store.Subscribers("room-1") == 1 }, "watch never subscribed")

	room := f.room(t)
	room.IsPlaying = true
	room.PositionMs = 60_000
	room.UpdatedAtMs = t0.UnixMilli()
	f.store.Push(room)

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("room watch error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}

	out := f.out.String()
	if !strings.Contains(out, "Watching room AB12CD") {
		t.Errorf("output missing header:\n%s", out)
	}
	if !strings.Contains(out, "▶ Daft Punk - One More Time 1:00 / 3:00") {
		t.Errorf("output missing remote update:\n%s", out)
	}
	if f.store.Subscribers("room-1") != 0 {
		t.Error("expected the subscription to be released")
	}
	if len(f.ctrl.Calls()) != 0 {
		t.Errorf("device calls = %v, want none without reconcile", f.ctrl.Calls())
	}
}

func TestRoomHistory(t *testing.T) {
	f := newFixture(t)
	if err := f.run(t, "room", "play", "AB12CD"); err != nil {
		t.Fatal(err)
	}

	t.Run("json to stdout", func(t *testing.T) {
		f.out.Reset()
		if err := f.run(t, "room", "history", "-f", "json", "AB12CD"); err != nil {
			t.Fatalf("room history error = %v", err)
		}
		var h formatter.History
		if err := json.Unmarshal(f.out.Bytes(), &h); err != nil {
			t.Fatalf("invalid JSON output: %v\n%s", err, f.out.String())
		}
		if h.Room.RoomCode != "AB12CD" || len(h.Events) != 1 {
			t.Errorf("history = %+v", h)
		}
	})

	t.Run("csv to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "history.csv")
		if err := f.run(t, "room", "history", "-f", "csv", "-o", path, "AB12CD"); err != nil {
			t.Fatalf("room history error = %v", err)
		}
		tu.AssertFileExists(t, path)
	})

	t.Run("bad format", func(t *testing.T) {
		err := f.run(t, "room", "history", "-f", "xml", "AB12CD")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("error = %v, want ErrInvalidArgument", err)
		}
	})
}

func TestRoomArchive(t *testing.T) {
	t.Run("named rooms", func(t *testing.T) {
		f := newFixture(t)
		dir := filepath.Join(t.TempDir(), "out")
		if err := f.run(t, "room", "archive", "-o", dir, "AB12CD", "ZZ99ZZ"); err != nil {
			t.Fatalf("room archive error = %v", err)
		}

		var manifest tasks.BulkExportResult
		if err := json.Unmarshal([]byte(tu.MustReadFile(t, filepath.Join(dir, tasks.ManifestFile))), &manifest); err != nil {
			t.Fatalf("invalid manifest: %v", err)
		}
		if manifest.SuccessfulExports != 1 || manifest.FailedExports != 1 {
			t.Errorf("manifest = %+v", manifest)
		}
		if !strings.Contains(f.out.String(), "✗ ZZ99ZZ") {
			t.Errorf("output missing failure:\n%s", f.out.String())
		}
	})

	t.Run("no rooms", func(t *testing.T) {
		f := newFixture(t)
		err := f.run(t, "room", "archive")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("error = %v, want ErrMissingArgument", err)
		}
	})

	t.Run("all needs a listing store", func(t *testing.T) {
		f := newFixture(t)
		err := f.run(t, "room", "archive", "--all")
		if !errors.Is(err, shared.ErrNotImplemented) {
			t.Errorf("error = %v, want ErrNotImplemented", err)
		}
	})
}

func TestSearch(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run(t, "search", "daft punk"); err != nil {
			t.Fatalf("search error = %v", err)
		}
		out := f.out.String()
		for _, want := range []string{"1. Daft Punk - Around the World [3:00] spotify:track:atw", "2. Daft Punk - Digital Love"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run(t, "search", "--json", "daft punk"); err != nil {
			t.Fatalf("search error = %v", err)
		}
		var tracks []models.UniversalTrack
		if err := json.Unmarshal(f.out.Bytes(), &tracks); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if len(tracks) != 2 {
			t.Errorf("tracks = %d, want 2", len(tracks))
		}
	})

	t.Run("no results", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.tracks = nil
		if err := f.run(t, "search", "nothing"); err != nil {
			t.Fatalf("search error = %v", err)
		}
		if !strings.Contains(f.out.String(), `No results for "nothing"`) {
			t.Errorf("output = %q", f.out.String())
		}
	})

	t.Run("missing query", func(t *testing.T) {
		f := newFixture(t)
		err := f.run(t, "search")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("error = %v, want ErrMissingArgument", err)
		}
	})
}

func TestAuthCommands(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		f := newFixture(t)
		f.tokens.saved[models.ProviderSpotify] = &oauth2.Token{AccessToken: "tok"}
		if err := f.run(t, "auth", "status", "--json"); err != nil {
			t.Fatalf("auth status error = %v", err)
		}

		var statuses []ConnectionStatus
		if err := json.Unmarshal(f.out.Bytes(), &statuses); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if len(statuses) != 2 {
			t.Fatalf("statuses = %+v", statuses)
		}
		if !statuses[0].Connected || statuses[0].Authorization != models.AuthorizationAuthorized.String() {
			t.Errorf("spotify = %+v", statuses[0])
		}
		if statuses[1].Connected {
			t.Errorf("apple music = %+v, want disconnected", statuses[1])
		}
	})

	t.Run("disconnect unsupported", func(t *testing.T) {
		f := newFixture(t)
		err := f.run(t, "auth", "disconnect", "spotify")
		if !errors.Is(err, shared.ErrNotImplemented) {
			t.Errorf("error = %v, want ErrNotImplemented", err)
		}
	})
}

func TestCatalogSelection(t *testing.T) {
	t.Run("injected catalog wins", func(t *testing.T) {
		f := newFixture(t)
		c, err := f.runner.catalog(context.Background(), models.ProviderSpotify, "")
		if err != nil || c != f.catalog {
			t.Errorf("catalog() = %v, %v", c, err)
		}
	})

	t.Run("apple without credentials", func(t *testing.T) {
		f := newFixture(t)
		f.runner.config.Supabase.URL = ""
		_, err := f.runner.catalog(context.Background(), models.ProviderAppleMusic, "")
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("error = %v, want ErrMissingCredentials", err)
		}
	})

	t.Run("controller falls back to noop", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Tokens: &fakeTokens{saved: map[models.ProviderKey]*oauth2.Token{}}, Logger: shared.NewLogger(&bytes.Buffer{})})
		runner.config.Playback.Controller = shared.ControllerSpotify
		if ctrl := runner.playbackController(context.Background(), "user-1"); ctrl.Available() {
			t.Errorf("controller = %T, want unavailable noop", ctrl)
		}
	})
}
