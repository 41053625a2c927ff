// Hosted backend store: PostgREST tables plus the realtime change feed
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/repositories"
	"github.com/desertthunder/crossplay/internal/roomsync"
	"github.com/desertthunder/crossplay/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const supabaseService = "supabase"

// SupabaseStore is a [roomsync.RoomStore] over the project's REST API. Writes are throttled
// and changes arrive through a [RealtimeClient] channel per subscription.
type SupabaseStore struct {
	api       *APIClient
	writes    *rate.Limiter
	realtime  *RealtimeClient
	providers *repositories.ProviderDirectory
	logger    *log.Logger

	mu    sync.Mutex
	codes map[string]string
}

var (
	_ roomsync.RoomStore = (*SupabaseStore)(nil)
	_ TokenStore         = (*SupabaseStore)(nil)
)

// NewSupabaseStore connects to the project at cfg.URL with the anonymous key.
func NewSupabaseStore(cfg shared.SupabaseConfig, client *http.Client, logger *log.Logger) (*SupabaseStore, error) {
	if cfg.URL == "" || cfg.AnonKey == "" {
		return nil, fmt.Errorf("%w: supabase url and anon_key", shared.ErrMissingConfig)
	}
	if logger == nil {
		logger = log.Default()
	}

	rt, err := NewRealtimeClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	api := NewAPIClient(cfg.URL+"/rest/v1", client).
		WithHeader("apikey", cfg.AnonKey).
		WithHeader("Authorization", "Bearer "+cfg.AnonKey)

	s := &SupabaseStore{
		api:      api,
		writes:   NewLimiter(cfg.RequestsPerSecond),
		realtime: rt,
		logger:   logger,
		codes:    make(map[string]string),
	}
	s.providers = repositories.NewProviderDirectory(s.lookupProvider)
	return s, nil
}

// Realtime exposes the change feed client.
func (s *SupabaseStore) Realtime() *RealtimeClient {
	return s.realtime
}

func (s *SupabaseStore) FetchByCode(ctx context.Context, code string) (models.RoomState, error) {
	code = models.NormalizeRoomCode(code)
	params := url.Values{}
	params.Set("room_code", "eq."+code)
	params.Set("select", "*")
	params.Set("limit", "1")

	var rooms []models.RoomState
	if err := s.api.call(ctx, supabaseService, http.MethodGet, "/rooms", params, nil, &rooms); err != nil {
		return models.RoomState{}, err
	}
	if len(rooms) == 0 {
		return models.RoomState{}, fmt.Errorf("%w: %s", shared.ErrRoomNotFound, code)
	}

	s.remember(rooms[0])
	return rooms[0], nil
}

// Update patches the room row. An update matching no row reports [shared.ErrRoomNotFound].
func (s *SupabaseStore) Update(ctx context.Context, roomID string, u models.RoomUpdate) error {
	if u.IsEmpty() {
		return nil
	}
	if err := s.throttle(ctx); err != nil {
		return err
	}

	params := url.Values{}
	params.Set("id", "eq."+roomID)

	resp, err := s.api.Do(ctx, http.MethodPatch, "/rooms", params, u, http.Header{"Prefer": {"return=representation"}})
	if err != nil {
		return err
	}
	if err := resp.Err(supabaseService); err != nil {
		return err
	}

	var rows []models.RoomState
	if err := resp.Decode(&rows); err == nil && len(rows) == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRoomNotFound, roomID)
	}
	return nil
}

func (s *SupabaseStore) InsertEvent(ctx context.Context, e models.RoomEvent) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := s.throttle(ctx); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.ID == "" {
		e.ID = shared.NewEventID(e.CreatedAt)
	}
	return s.insert(ctx, "/room_events", e)
}

func (s *SupabaseStore) ListEvents(ctx context.Context, roomID string) ([]models.RoomEvent, error) {
	params := url.Values{}
	params.Set("room_id", "eq."+roomID)
	params.Set("order", "created_at.asc,id.asc")

	var events []models.RoomEvent
	if err := s.api.call(ctx, supabaseService, http.MethodGet, "/room_events", params, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CreateRoom inserts the room, mapping a unique violation on room_code to [shared.ErrRoomCodeTaken].
func (s *SupabaseStore) CreateRoom(ctx context.Context, room models.RoomState) error {
	room.RoomCode = models.NormalizeRoomCode(room.RoomCode)
	if err := room.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := s.throttle(ctx); err != nil {
		return err
	}

	resp, err := s.api.Do(ctx, http.MethodPost, "/rooms", nil, room, http.Header{"Prefer": {"return=minimal"}})
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: %s", shared.ErrRoomCodeTaken, room.RoomCode)
	}
	if err := resp.Err(supabaseService); err != nil {
		return err
	}

	s.remember(room)
	return nil
}

func (s *SupabaseStore) AddMember(ctx context.Context, roomID, userID string) error {
	if err := s.throttle(ctx); err != nil {
		return err
	}
	body := map[string]string{"room_id": roomID, "user_id": userID}
	return s.upsert(ctx, "/room_members", url.Values{"on_conflict": {"room_id,user_id"}}, body, "resolution=ignore-duplicates")
}

// Subscribe joins realtime:room:{code} listening for updates of this room's row.
func (s *SupabaseStore) Subscribe(ctx context.Context, roomID string, fn func(models.RoomState)) (roomsync.Handle, error) {
	changes := []PostgresChange{{Event: "UPDATE", Schema: "public", Table: "rooms", Filter: "id=eq." + roomID}}

	ch, err := s.realtime.Join(ctx, "realtime:room:"+s.codeFor(roomID), changes, func(record json.RawMessage) {
		var room models.RoomState
		if err := json.Unmarshal(record, &room); err != nil {
			s.logger.Warn("dropping undecodable room change", "room", roomID, "error", err)
			return
		}
		fn(room)
	})
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { ch.Close() })
	return roomsync.HandleFunc(func() error {
		stop()
		return ch.Close()
	}), nil
}

// ResolveUser upserts username and returns its id.
func (s *SupabaseStore) ResolveUser(ctx context.Context, username string) (string, error) {
	name, err := models.NormalizeUsername(username)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	body := map[string]string{"id": shared.GenerateID(), "username": name}
	if err := s.upsert(ctx, "/users", url.Values{"on_conflict": {"username"}}, body, "resolution=ignore-duplicates"); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("username", "eq."+name)
	params.Set("select", "id")

	var users []models.User
	if err := s.api.call(ctx, supabaseService, http.MethodGet, "/users", params, nil, &users); err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", fmt.Errorf("%w: user %q not found after upsert", shared.ErrAPIRequest, name)
	}
	return users[0].ID, nil
}

type connectionRow struct {
	UserID       string     `json:"user_id"`
	ProviderID   int64      `json:"provider_id"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

// SaveToken upserts userID's connection to provider.
func (s *SupabaseStore) SaveToken(ctx context.Context, userID string, provider models.ProviderKey, tok *oauth2.Token, scope string) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("%w: access token is required", shared.ErrInvalidInput)
	}
	providerID, err := s.providers.ID(ctx, provider)
	if err != nil {
		return err
	}

	row := connectionRow{
		UserID:       userID,
		ProviderID:   providerID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Scope:        scope,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		row.Expiry = &exp
	}
	return s.upsert(ctx, "/streaming_connections", url.Values{"on_conflict": {"user_id,provider_id"}}, row, "resolution=merge-duplicates")
}

// Token returns userID's stored token for provider, wrapping [shared.ErrNotAuthenticated] when absent.
func (s *SupabaseStore) Token(ctx context.Context, userID string, provider models.ProviderKey) (*oauth2.Token, string, error) {
	providerID, err := s.providers.ID(ctx, provider)
	if err != nil {
		return nil, "", err
	}

	params := url.Values{}
	params.Set("user_id", "eq."+userID)
	params.Set("provider_id", fmt.Sprintf("eq.%d", providerID))
	params.Set("limit", "1")

	var rows []connectionRow
	if err := s.api.call(ctx, supabaseService, http.MethodGet, "/streaming_connections", params, nil, &rows); err != nil {
		return nil, "", err
	}
	if len(rows) == 0 {
		return nil, "", fmt.Errorf("%w: no stored connection", shared.ErrNotAuthenticated)
	}

	r := rows[0]
	tok := &oauth2.Token{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken, TokenType: r.TokenType}
	if r.Expiry != nil {
		tok.Expiry = *r.Expiry
	}
	return tok, r.Scope, nil
}

func (s *SupabaseStore) lookupProvider(ctx context.Context, key models.ProviderKey) (int64, error) {
	params := url.Values{}
	params.Set("key", "eq."+string(key))
	params.Set("select", "id")

	var rows []struct {
		ID int64 `json:"id"`
	}
	if err := s.api.call(ctx, supabaseService, http.MethodGet, "/streaming_providers", params, nil, &rows); err != nil {
		return 0, fmt.Errorf("provider lookup failed for %s: %w", key, err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("%w: unknown provider %q", shared.ErrInvalidArgument, key)
	}
	return rows[0].ID, nil
}

func (s *SupabaseStore) insert(ctx context.Context, path string, body any) error {
	resp, err := s.api.Do(ctx, http.MethodPost, path, nil, body, http.Header{"Prefer": {"return=minimal"}})
	if err != nil {
		return err
	}
	return resp.Err(supabaseService)
}

func (s *SupabaseStore) upsert(ctx context.Context, path string, params url.Values, body any, resolution string) error {
	header := http.Header{"Prefer": {resolution + ",return=minimal"}}
	resp, err := s.api.Do(ctx, http.MethodPost, path, params, body, header)
	if err != nil {
		return err
	}
	return resp.Err(supabaseService)
}

func (s *SupabaseStore) throttle(ctx context.Context) error {
	if s.writes == nil {
		return nil
	}
	if err := s.writes.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func (s *SupabaseStore) remember(room models.RoomState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[room.ID] = room.RoomCode
}

// codeFor returns the room code seen for roomID, falling back to the id itself.
func (s *SupabaseStore) codeFor(roomID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, ok := s.codes[roomID]; ok {
		return code
	}
	return roomID
}
