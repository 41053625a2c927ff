package repositories

import (
	"context"
	"database/sql"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/roomsync"
	"golang.org/x/oauth2"
)

// LocalStore is a [roomsync.RoomStore] over SQLite. Subscribers in the same process
// see every committed Update through the store's [Feed].
type LocalStore struct {
	rooms       *RoomRepository
	events      *EventRepository
	members     *MemberRepository
	users       *UserRepository
	connections *ConnectionRepository
	providers   *ProviderDirectory
	feed        *Feed
	logger      *log.Logger
}

var _ roomsync.RoomStore = (*LocalStore)(nil)

// NewLocalStore wires the SQLite repositories around db. The schema must already be migrated.
func NewLocalStore(db *sql.DB, logger *log.Logger) *LocalStore {
	if logger == nil {
		logger = log.Default()
	}
	return &LocalStore{
		rooms:       NewRoomRepository(db),
		events:      NewEventRepository(db),
		members:     NewMemberRepository(db),
		users:       NewUserRepository(db),
		connections: NewConnectionRepository(db),
		providers:   NewProviderDirectory(SQLiteProviders(db)),
		feed:        NewFeed(),
		logger:      logger,
	}
}

func (s *LocalStore) FetchByCode(ctx context.Context, code string) (models.RoomState, error) {
	return s.rooms.GetByCode(ctx, code)
}

// Update writes u and publishes the resulting row to the room's subscribers.
func (s *LocalStore) Update(ctx context.Context, roomID string, u models.RoomUpdate) error {
	if err := s.rooms.Update(ctx, roomID, u); err != nil {
		return err
	}

	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		s.logger.Warn("room written but re-read failed", "room", roomID, "error", err)
		return nil
	}
	s.feed.Publish(room)
	return nil
}

func (s *LocalStore) InsertEvent(ctx context.Context, e models.RoomEvent) error {
	return s.events.Insert(ctx, e)
}

// Subscribe registers fn on the feed until the handle is released or ctx is done.
func (s *LocalStore) Subscribe(ctx context.Context, roomID string, fn func(models.RoomState)) (roomsync.Handle, error) {
	if _, err := s.rooms.Get(ctx, roomID); err != nil {
		return nil, err
	}

	cancel := s.feed.Subscribe(roomID, fn)
	stop := context.AfterFunc(ctx, cancel)
	return roomsync.HandleFunc(func() error {
		stop()
		cancel()
		return nil
	}), nil
}

func (s *LocalStore) CreateRoom(ctx context.Context, room models.RoomState) error {
	return s.rooms.Create(ctx, room)
}

func (s *LocalStore) AddMember(ctx context.Context, roomID, userID string) error {
	return s.members.Add(ctx, roomID, userID)
}

func (s *LocalStore) ListEvents(ctx context.Context, roomID string) ([]models.RoomEvent, error) {
	return s.events.ListByRoom(ctx, roomID)
}

// Members lists the members of roomID.
func (s *LocalStore) Members(ctx context.Context, roomID string) ([]models.Member, error) {
	return s.members.List(ctx, roomID)
}

// Rooms lists every room.
func (s *LocalStore) Rooms(ctx context.Context) ([]models.RoomState, error) {
	return s.rooms.List(ctx)
}

// ResolveUser returns the id for username, creating the user on first use.
func (s *LocalStore) ResolveUser(ctx context.Context, username string) (string, error) {
	return s.users.Resolve(ctx, username)
}

// SaveToken stores tok as userID's connection to provider.
func (s *LocalStore) SaveToken(ctx context.Context, userID string, provider models.ProviderKey, tok *oauth2.Token, scope string) error {
	id, err := s.providers.ID(ctx, provider)
	if err != nil {
		return err
	}
	return s.connections.Save(ctx, userID, id, tok, scope)
}

// Token returns userID's stored token for provider and its granted scope.
func (s *LocalStore) Token(ctx context.Context, userID string, provider models.ProviderKey) (*oauth2.Token, string, error) {
	id, err := s.providers.ID(ctx, provider)
	if err != nil {
		return nil, "", err
	}
	return s.connections.Get(ctx, userID, id)
}

// Disconnect removes userID's stored token for provider.
func (s *LocalStore) Disconnect(ctx context.Context, userID string, provider models.ProviderKey) error {
	id, err := s.providers.ID(ctx, provider)
	if err != nil {
		return err
	}
	return s.connections.Delete(ctx, userID, id)
}

// Subscribers returns the number of live subscriptions to roomID.
func (s *LocalStore) Subscribers(roomID string) int {
	return s.feed.Count(roomID)
}
