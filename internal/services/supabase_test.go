package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/shared"
	tu "github.com/desertthunder/crossplay/internal/testing"
	"golang.org/x/oauth2"
)

type restCall struct {
	Method string
	Path   string
	Query  map[string]string
	Prefer string
	Body   string
}

// fakeREST answers PostgREST requests from canned responses keyed by "METHOD /path".
type fakeREST struct {
	t *testing.T

	mu        sync.Mutex
	calls     []restCall
	responses map[string]fakeResponse
}

type fakeResponse struct {
	status int
	body   string
}

func newFakeREST(t *testing.T) *fakeREST {
	return &fakeREST{t: t, responses: map[string]fakeResponse{}}
}

func (f *fakeREST) on(method, path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method+" "+path] = fakeResponse{status: status, body: body}
}

func (f *fakeREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != "anon" || r.Header.Get("Authorization") != "Bearer anon" {
		f.t.Errorf("missing anon key headers on %s %s", r.Method, r.URL.Path)
	}

	body, _ := io.ReadAll(r.Body)
	query := map[string]string{}
	for k, v := range r.URL.Query() {
		query[k] = v[0]
	}

	f.mu.Lock()
	f.calls = append(f.calls, restCall{Method: r.Method, Path: r.URL.Path, Query: query, Prefer: r.Header.Get("Prefer"), Body: string(body)})
	resp, ok := f.responses[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		resp = fakeResponse{status: http.StatusCreated}
	}
	if resp.body != "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.status)
	w.Write([]byte(resp.body))
}

func (f *fakeREST) last() restCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		f.t.Fatal("no requests made")
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeREST) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func setupSupabase(t *testing.T) (*SupabaseStore, *fakeREST, *fakeRealtime) {
	t.Helper()

	rest := newFakeREST(t)
	fake := newFakeRealtime(t, rest)

	store, err := NewSupabaseStore(fake.config(), nil, quietLogger())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store, rest, fake
}

const roomRow = `{"id":"room-1","room_code":"ABC123","host_user_id":"user-1","is_playing":true,"position_ms":42000,"updated_at_ms":1700000000000}`

func TestSupabaseStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Requires URL And Key", func(t *testing.T) {
		_, err := NewSupabaseStore(shared.SupabaseConfig{URL: "https://x.supabase.co"}, nil, nil)
		if !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("FetchByCode", func(t *testing.T) {
		store, rest, _ := setupSupabase(t)
		rest.on(http.MethodGet, "/rest/v1/rooms", http.StatusOK, "["+roomRow+"]")

		room, err := store.FetchByCode(ctx, " abc123 ")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if room.ID != "room-1" || !room.IsPlaying || room.PositionMs != 42000 {
			t.Errorf("unexpected room %+v", room)
		}
		if q := rest.last().Query; q["room_code"] != "eq.ABC123" || q["limit"] != "1" {
			t.Errorf("unexpected query %v", q)
		}
	})

	t.Run("FetchByCode Not Found", func(t *testing.T) {
		store, rest, _ := setupSupabase(t)
		rest.on(http.MethodGet, "/rest/v1/rooms", http.StatusOK, "[]")

		if _, err := store.FetchByCode(ctx, "NOPE"); !errors.Is(err, shared.ErrRoomNotFound) {
			t.Errorf("expected ErrRoomNotFound, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		store, rest, _ := setupSupabase(t)
		rest.on(http.MethodPatch, "/rest/v1/rooms", http.StatusOK, "["+roomRow+"]")

		playing, pos, at := false, int64(0), int64(1700000005000)
		err := store.Update(ctx, "room-1", models.RoomUpdate{IsPlaying: &playing, PositionMs: &pos, UpdatedAtMs: &at})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		call := rest.last()
		if call.Query["id"] != "eq.room-1" || call.Prefer != "return=representation" {
			t.Errorf("unexpected request %+v", call)
		}

		var sent map[string]any
		json.Unmarshal([]byte(call.Body), &sent)
		if sent["is_playing"] != false || sent["position_ms"] != float64(0) {
			t.Errorf("expected explicit false and zero in body, got %s", call.Body)
		}
		if _, ok := sent["current_track"]; ok {
			t.Errorf("expected unset fields omitted, got %s", call.Body)
		}
	})

	t.Run("Update Missing Room", func(t *testing.T) {
		store, rest, _ := setupSupabase(t)
		rest.on(http.MethodPatch, "/rest/v1/rooms", http.StatusOK, "[]")

		playing := true
		if err := store.Update(ctx, "gone", models.RoomUpdate{IsPlaying: &playing}); !errors.Is(err, shared.ErrRoomNotFound) {
			t.Errorf("expected ErrRoomNotFound, got %v", err)
		}
	})

	t.Run("Update Failure", func(t *testing.T) {
		store, rest, _ := setupSupabase(t)
		rest.on(http.MethodPatch, "/rest/v1/rooms", http.StatusServiceUnavailable, `{"message":"down"}`)

		playing := true
		if err := store.Update(ctx, "room-1", models.RoomUpdate{IsPlaying: &playing}); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("Empty Update Is Skipped", func(t *testing.T) {
		store, rest, _ := setupSupabase(t)
		if err := store.Update(ctx, "room-1", models.RoomUpdate{}); err != nil {
			t.Fatal(err)
		}
		if rest.count() != 0 {
			t.Errorf("expected no request, got %d", rest.count())
		}
	})

	t.Run("InsertEvent", func(t *testing.T) {
		store, rest, _ := setupSupabase(t)

		e, _ := models.NewRoomEvent("room-1", models.EventPlaybackUpdate, map[string]bool{"is_playing": true}, "user-1")
		if err := store.InsertEvent(ctx, e); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		call := rest.last()
		if call.Method != http.MethodPost || call.Path != "/rest/v1/room_events" {
			t.Errorf("unexpected request %+v", call)
		}

		var sent models.RoomEvent
		json.Unmarshal([]byte(call.Body), &sent)
		if sent.ID == "" || sent.Type != models.EventPlaybackUpdate || sent.ActorUserID != "user-1" {
			t.Errorf("unexpected event body %s", call.Body)
		}
	})

	t.Run("InsertEvent Invalid", func(t *testing.T) {
		store, rest, _ := setupSupabase(t)
		if err := store.InsertEvent(ctx, models.RoomEvent{RoomID: "room-1", Type: "BOGUS"}); err == nil {
			t.Error("expected validation error")
		}
		if rest.count() != 0 {
			t.Error("expected no request for an invalid event")
		}
	})

	t.Run("ListEvents", func(t *testing.T) {
		store, rest, _ := setupSupabase(t)
		rest.on(http.MethodGet, "/rest/v1/room_events", http.StatusOK,
			`[{"id":"01","room_id":"room-1","type":"SET_TRACK","payload":{"title":"Song"},"actor_user_id":"user-1","created_at":"2026-01-01T00:00:00Z"}]`)

		events, err := store.ListEvents(ctx, "room-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 || events[0].Type != models.EventSetTrack {
			t.Errorf("unexpected events %+v", events)
		}
		if q := rest.last().Query; q["order"] != "created_at.asc,id.asc" || q["room_id"] != "eq.room-1" {
			t.Errorf("unexpected query %v", q)
		}
	})

	t.Run("CreateRoom", func(t *testing.T) {
		store, rest, _ := setupSupabase(t)

		room := models.NewRoomState("room-2", "xyz789", "user-1", time.UnixMilli(1700000000000))
		if err := store.CreateRoom(ctx, room); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if call := rest.last(); call.Path != "/rest/v1/rooms" || call.Method != http.MethodPost {
			t.Errorf("unexpected request %+v", call)
		}
		if store.codeFor("room-2") != "XYZ789" {
			t.Errorf("expected code remembered, got %s", store.codeFor("room-2"))
		}
	})

	t.Run("CreateRoom Conflict", func(t *testing.T) {
		store, rest, _ := setupSupabase(t)
		rest.on(http.MethodPost, "/rest/v1/rooms", http.StatusConflict, `{"code":"23505"}`)

		room := models.NewRoomState("room-2", "ABC123", "user-1", time.Now())
		if err := store.CreateRoom(ctx, room); !errors.Is(err, shared.ErrRoomCodeTaken) {
			t.Errorf("expected ErrRoomCodeTaken, got %v", err)
		}
	})

	t.Run("AddMember", func(t *testing.T) {
		store, rest, _ := setupSupabase(t)
		if err := store.AddMember(ctx, "room-1", "user-2"); err != nil {
			t.Fatal(err)
		}

		call := rest.last()
		if call.Path != "/rest/v1/room_members" || call.Query["on_conflict"] != "room_id,user_id" {
			t.Errorf("unexpected request %+v", call)
		}
		if call.Prefer != "resolution=ignore-duplicates,return=minimal" {
			t.Errorf("unexpected prefer %q", call.Prefer)
		}
	})

	t.Run("ResolveUser", func(t *testing.T) {
		store, rest, _ := setupSupabase(t)
		rest.on(http.MethodGet, "/rest/v1/users", http.StatusOK, `[{"id":"user-9"}]`)

		id, err := store.ResolveUser(ctx, "  DJ ")
		if err != nil {
			t.Fatal(err)
		}
		if id != "user-9" {
			t.Errorf("expected user-9, got %s", id)
		}
		if rest.count() != 2 {
			t.Errorf("expected upsert then select, got %d requests", rest.count())
		}
	})

	t.Run("ResolveUser Invalid", func(t *testing.T) {
		store, _, _ := setupSupabase(t)
		if _, err := store.ResolveUser(ctx, "   "); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Tokens", func(t *testing.T) {
		store, rest, _ := setupSupabase(t)
		rest.on(http.MethodGet, "/rest/v1/streaming_providers", http.StatusOK, `[{"id":1}]`)

		expiry := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
		tok := &oauth2.Token{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer", Expiry: expiry}
		if err := store.SaveToken(ctx, "user-1", models.ProviderSpotify, tok, ScopeModifyPlayback); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		call := rest.last()
		if call.Path != "/rest/v1/streaming_connections" || call.Prefer != "resolution=merge-duplicates,return=minimal" {
			t.Errorf("unexpected request %+v", call)
		}

		rest.on(http.MethodGet, "/rest/v1/streaming_connections", http.StatusOK, "["+call.Body+"]")
		got, scope, err := store.Token(ctx, "user-1", models.ProviderSpotify)
		if err != nil {
			t.Fatal(err)
		}
		if got.AccessToken != "at" || got.RefreshToken != "rt" || !got.Expiry.Equal(expiry) {
			t.Errorf("unexpected token %+v", got)
		}
		if scope != ScopeModifyPlayback {
			t.Errorf("unexpected scope %q", scope)
		}
		if q := rest.last().Query; q["provider_id"] != "eq.1" {
			t.Errorf("unexpected provider filter %v", q)
		}
	})

	t.Run("Token Missing", func(t *testing.T) {
		store, rest, _ := setupSupabase(t)
		rest.on(http.MethodGet, "/rest/v1/streaming_providers", http.StatusOK, `[{"id":1}]`)
		rest.on(http.MethodGet, "/rest/v1/streaming_connections", http.StatusOK, `[]`)

		if _, _, err := store.Token(ctx, "user-1", models.ProviderSpotify); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("Subscribe", func(t *testing.T) {
		store, rest, fake := setupSupabase(t)
		rest.on(http.MethodGet, "/rest/v1/rooms", http.StatusOK, "["+roomRow+"]")
		if _, err := store.FetchByCode(ctx, "ABC123"); err != nil {
			t.Fatal(err)
		}

		rooms := make(chan models.RoomState, 4)
		handle, err := store.Subscribe(ctx, "room-1", func(r models.RoomState) { rooms <- r })
		if err != nil {
			t.Fatalf("expected subscription, got %v", err)
		}

		if !fake.joined("realtime:room:ABC123") {
			t.Fatal("expected join on the room code topic")
		}

		fake.pushChange("realtime:room:ABC123", `{"id":"room-1","room_code":"ABC123","is_playing":false,"position_ms":50000,"updated_at_ms":1700000009000}`)
		fake.pushChange("realtime:room:ABC123", `"not a room"`)

		select {
		case got := <-rooms:
			if got.IsPlaying || got.PositionMs != 50000 {
				t.Errorf("unexpected room %+v", got)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("change not delivered")
		}

		if err := handle.Unsubscribe(); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
		tu.Eventually(t, 2*time.Second, func() bool { return fake.leaves.Load() == 1 }, "channel left")
	})

	t.Run("Subscribe Ends With Context", func(t *testing.T) {
		store, _, fake := setupSupabase(t)
		subCtx, cancel := context.WithCancel(ctx)

		handle, err := store.Subscribe(subCtx, "room-7", func(models.RoomState) {})
		if err != nil {
			t.Fatal(err)
		}
		if !fake.joined("realtime:room:room-7") {
			t.Error("expected fallback to the room id for an unseen room")
		}

		cancel()
		tu.Eventually(t, 2*time.Second, func() bool { return fake.leaves.Load() == 1 }, "channel left on cancel")
		handle.Unsubscribe()
	})
}
