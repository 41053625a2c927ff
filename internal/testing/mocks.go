package testing

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/roomsync"
	"github.com/desertthunder/crossplay/internal/shared"
)

// MockStore is an in-memory [roomsync.RoomStore]. With Echo set, every successful Update
// is delivered to the room's subscribers, the way a hosted change feed echoes writes.
type MockStore struct {
	mu      sync.Mutex
	rooms   map[string]models.RoomState
	events  []models.RoomEvent
	members map[string][]string
	subs    map[string]map[int]func(models.RoomState)
	nextSub int

	Echo bool

	FetchErr       error
	UpdateErr      error
	InsertEventErr error
	SubscribeErr   error
	CreateErr      error
	UnsubscribeErr error

	// TakenCodes makes CreateRoom report a collision for these codes.
	TakenCodes []string

	Updates      []models.RoomUpdate
	FetchCalls   int
	Unsubscribed int
}

var _ roomsync.RoomStore = (*MockStore)(nil)

// NewMockStore returns an echoing store seeded with rooms.
func NewMockStore(rooms ...models.RoomState) *MockStore {
	m := &MockStore{
		rooms:   make(map[string]models.RoomState),
		members: make(map[string][]string),
		subs:    make(map[string]map[int]func(models.RoomState)),
		Echo:    true,
	}
	for _, r := range rooms {
		m.rooms[r.ID] = r
	}
	return m
}

func (m *MockStore) FetchByCode(ctx context.Context, code string) (models.RoomState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCalls++
	if m.FetchErr != nil {
		return models.RoomState{}, m.FetchErr
	}
	for _, r := range m.rooms {
		if strings.EqualFold(r.RoomCode, code) {
			return r, nil
		}
	}
	return models.RoomState{}, fmt.Errorf("%w: %s", shared.ErrRoomNotFound, code)
}

func (m *MockStore) Update(ctx context.Context, roomID string, u models.RoomUpdate) error {
	m.mu.Lock()
	m.Updates = append(m.Updates, u)
	if m.UpdateErr != nil {
		m.mu.Unlock()
		return m.UpdateErr
	}
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", shared.ErrRoomNotFound, roomID)
	}
	room = room.Apply(u)
	m.rooms[roomID] = room
	fns := m.subscribersLocked(roomID)
	echo := m.Echo
	m.mu.Unlock()

	if echo {
		for _, fn := range fns {
			fn(room)
		}
	}
	return nil
}

func (m *MockStore) InsertEvent(ctx context.Context, e models.RoomEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertEventErr != nil {
		return m.InsertEventErr
	}
	if err := e.Validate(); err != nil {
		return err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *MockStore) Subscribe(ctx context.Context, roomID string, fn func(models.RoomState)) (roomsync.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubscribeErr != nil {
		return nil, m.SubscribeErr
	}
	if m.subs[roomID] == nil {
		m.subs[roomID] = make(map[int]func(models.RoomState))
	}
	id := m.nextSub
	m.nextSub++
	m.subs[roomID][id] = fn

	return roomsync.HandleFunc(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[roomID], id)
		m.Unsubscribed++
		return m.UnsubscribeErr
	}), nil
}

func (m *MockStore) CreateRoom(ctx context.Context, room models.RoomState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if slices.Contains(m.TakenCodes, room.RoomCode) {
		return fmt.Errorf("%w: %s", shared.ErrRoomCodeTaken, room.RoomCode)
	}
	for _, r := range m.rooms {
		if r.RoomCode == room.RoomCode {
			return fmt.Errorf("%w: %s", shared.ErrRoomCodeTaken, room.RoomCode)
		}
	}
	m.rooms[room.ID] = room
	return nil
}

func (m *MockStore) AddMember(ctx context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.members[roomID], userID) {
		m.members[roomID] = append(m.members[roomID], userID)
	}
	return nil
}

func (m *MockStore) ListEvents(ctx context.Context, roomID string) ([]models.RoomEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RoomEvent
	for _, e := range m.events {
		if e.RoomID == roomID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Push stores room and delivers it to subscribers, simulating a write by another participant.
func (m *MockStore) Push(room models.RoomState) {
	m.mu.Lock()
	m.rooms[room.ID] = room
	fns := m.subscribersLocked(room.ID)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(room)
	}
}

// Put stores room without notifying subscribers.
func (m *MockStore) Put(room models.RoomState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.ID] = room
}

// Room returns the stored room by id.
func (m *MockStore) Room(id string) (models.RoomState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	return r, ok
}

// Events returns every stored event.
func (m *MockStore) Events() []models.RoomEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// Members returns the member ids of a room.
func (m *MockStore) Members(roomID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.members[roomID])
}

// UpdateCount returns the number of Update calls.
func (m *MockStore) UpdateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Updates)
}

// Subscribers returns the number of live subscriptions to a room.
func (m *MockStore) Subscribers(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[roomID])
}

func (m *MockStore) subscribersLocked(roomID string) []func(models.RoomState) {
	fns := make([]func(models.RoomState), 0, len(m.subs[roomID]))
	for _, fn := range m.subs[roomID] {
		fns = append(fns, fn)
	}
	return fns
}

// MockController is a [roomsync.PlaybackController] that records the commands it receives
// as strings such as "play", "pause", "seek:1000" and "queue:id:true".
type MockController struct {
	mu sync.Mutex

	Key         models.ProviderKey
	Unavailable bool
	Status      models.AuthorizationStatus
	AuthErr     error
	NowErr      error

	// Errs fails the named command ("queue", "play", "pause", "next", "previous", "seek").
	Errs map[string]error

	Now   *models.NowPlaying
	calls []string
}

var _ roomsync.PlaybackController = (*MockController)(nil)

// NewMockController returns an authorized, available controller for key.
func NewMockController(key models.ProviderKey) *MockController {
	return &MockController{Key: key, Status: models.AuthorizationAuthorized, Errs: map[string]error{}}
}

func (m *MockController) Provider() models.ProviderKey { return m.Key }
func (m *MockController) Available() bool              { return !m.Unavailable }

func (m *MockController) RequestAuthorization(ctx context.Context) (models.AuthorizationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "authorize")
	return m.Status, m.AuthErr
}

func (m *MockController) SetQueue(ctx context.Context, ids []string, autoplay bool) error {
	return m.record("queue", fmt.Sprintf("queue:%s:%t", strings.Join(ids, ","), autoplay), func() {
		state := models.PlaybackPaused
		if autoplay {
			state = models.PlaybackPlaying
		}
		m.Now = &models.NowPlaying{Title: strings.Join(ids, ","), PlaybackState: state}
	})
}

func (m *MockController) Play(ctx context.Context) error {
	return m.record("play", "play", func() { m.setState(models.PlaybackPlaying) })
}

func (m *MockController) Pause(ctx context.Context) error {
	return m.record("pause", "pause", func() { m.setState(models.PlaybackPaused) })
}

func (m *MockController) SkipNext(ctx context.Context) error {
	return m.record("next", "next", nil)
}

func (m *MockController) SkipPrevious(ctx context.Context) error {
	return m.record("previous", "previous", nil)
}

func (m *MockController) SeekTo(ctx context.Context, ms int64) error {
	return m.record("seek", fmt.Sprintf("seek:%d", ms), func() {
		if m.Now != nil {
			m.Now.PositionMs = ms
		}
	})
}

func (m *MockController) NowPlaying(ctx context.Context) (*models.NowPlaying, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NowErr != nil {
		return nil, m.NowErr
	}
	if m.Now == nil {
		return nil, nil
	}
	np := *m.Now
	return &np, nil
}

// Calls returns the recorded commands.
func (m *MockController) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// Reset forgets the recorded commands.
func (m *MockController) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// SetNowPlaying replaces what the device reports.
func (m *MockController) SetNowPlaying(np *models.NowPlaying) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Now = np
}

func (m *MockController) record(name, call string, apply func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if err := m.Errs[name]; err != nil {
		return err
	}
	if apply != nil {
		apply()
	}
	return nil
}

func (m *MockController) setState(state models.PlaybackState) {
	if m.Now == nil {
		m.Now = &models.NowPlaying{}
	}
	m.Now.PlaybackState = state
}
