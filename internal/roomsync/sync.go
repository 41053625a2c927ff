package roomsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/shared"
)

// maxCodeAttempts bounds room code generation retries on collision.
const maxCodeAttempts = 5

// DefaultDriftToleranceMs is how far a remote update may move the displayed position
// before the device is told to seek.
const DefaultDriftToleranceMs = 2000

// Phase is the lifecycle state of the room held by a [Sync].
type Phase int

const (
	Unloaded Phase = iota
	Loading
	Loaded
	Reconciling
	Failed
)

func (p Phase) String() string {
	switch p {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Reconciling:
		return "reconciling"
	case Failed:
		return "error"
	default:
		return ""
	}
}

// Confirmation tells whether the held state has been seen from the store.
type Confirmation int

const (
	// Applied is a local write that the change feed has not echoed yet.
	Applied Confirmation = iota + 1
	// Confirmed came from a load, a re-read or the change feed.
	Confirmed
)

func (c Confirmation) String() string {
	switch c {
	case Applied:
		return "applied"
	case Confirmed:
		return "confirmed"
	default:
		return ""
	}
}

// Projection is a point-in-time read of the local view of a room.
type Projection struct {
	Phase        Phase
	State        models.RoomState
	Confirmation Confirmation
	DisplayedMs  int64
	Subscribed   bool
	Ticking      bool
	Err          error
}

// Options configures a [Sync].
type Options struct {
	Store      RoomStore
	Controller PlaybackController // defaults to [NoopController]

	// ActorUserID tags event records. Events are skipped when empty.
	ActorUserID string

	Clock            func() time.Time
	TickInterval     time.Duration // defaults to one second
	ResyncInterval   time.Duration // zero disables periodic re-reads
	DriftToleranceMs int64
	Reconcile        bool

	// OnTick receives the projection on every tick while the room plays.
	OnTick func(Projection)

	// CodeGenerator produces candidate room codes; defaults to [shared.GenerateRoomCode].
	CodeGenerator func() (string, error)

	NoticeBuffer int
	Logger       *log.Logger
}

// Sync keeps one client's view of a room consistent with the shared store and the local device.
type Sync struct {
	store    RoomStore
	ctrl     PlaybackController
	actor    string
	clock    func() time.Time
	tick     time.Duration
	resync   time.Duration
	drift    int64
	recon    bool
	onTick   func(Projection)
	codeGen  func() (string, error)
	notices  chan Notice
	logger   *log.Logger
	mu       sync.Mutex
	phase    Phase
	state    *models.RoomState
	conf     Confirmation
	lastErr  error
	inflight int
	sub      *Subscription
	ticker   *loop
	resyncer *loop
}

// New returns a Sync over opts.Store with no room loaded.
func New(opts Options) *Sync {
	s := &Sync{
		store:   opts.Store,
		ctrl:    opts.Controller,
		actor:   opts.ActorUserID,
		clock:   opts.Clock,
		tick:    opts.TickInterval,
		resync:  opts.ResyncInterval,
		drift:   opts.DriftToleranceMs,
		recon:   opts.Reconcile,
		onTick:  opts.OnTick,
		codeGen: opts.CodeGenerator,
		logger:  opts.Logger,
	}

	if s.ctrl == nil {
		s.ctrl = NoopController{}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.tick <= 0 {
		s.tick = time.Second
	}
	if s.drift <= 0 {
		s.drift = DefaultDriftToleranceMs
	}
	if s.codeGen == nil {
		s.codeGen = shared.GenerateRoomCode
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}

	buf := opts.NoticeBuffer
	if buf <= 0 {
		buf = 16
	}
	s.notices = make(chan Notice, buf)
	return s
}

// Notices returns the channel on which non-fatal failures are reported.
func (s *Sync) Notices() <-chan Notice {
	return s.notices
}

// Controller returns the playback controller in use.
func (s *Sync) Controller() PlaybackController {
	return s.ctrl
}

// SetActor changes the user id attached to event records.
func (s *Sync) SetActor(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actor = userID
}

func (s *Sync) now() time.Time {
	return s.clock()
}

func (s *Sync) nowMs() int64 {
	return s.clock().UnixMilli()
}

// Projection returns the current local view with the displayed position evaluated now.
func (s *Sync) Projection() Projection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectionLocked(s.nowMs())
}

func (s *Sync) projectionLocked(nowMs int64) Projection {
	p := Projection{
		Phase:        s.phase,
		Confirmation: s.conf,
		Subscribed:   s.sub != nil,
		Ticking:      s.ticker != nil,
		Err:          s.lastErr,
	}
	if s.state != nil {
		p.State = *s.state
		p.DisplayedMs = ComputeDisplayedPosition(*s.state, nowMs)
	}
	return p
}

// Current returns the held room state, or [shared.ErrRoomNotLoaded].
func (s *Sync) Current() (models.RoomState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return models.RoomState{}, shared.ErrRoomNotLoaded
	}
	return *s.state, nil
}

// LoadRoom looks up the room by its case-insensitive code and makes it the held state.
//
// A missing room moves the Sync to the [Failed] phase until the next LoadRoom. Loading a
// different room releases the subscription to the previous one.
func (s *Sync) LoadRoom(ctx context.Context, roomCode string) (models.RoomState, error) {
	code := models.NormalizeRoomCode(roomCode)

	s.mu.Lock()
	stale := s.sub
	if stale != nil && stale.code == code {
		stale = nil
	}
	s.phase = Loading
	s.lastErr = nil
	s.mu.Unlock()
	s.release(stale)

	if !shared.ValidRoomCode(code) {
		return s.failLoad(fmt.Errorf("%w: %w: %q", shared.ErrRoomNotFound, shared.ErrInvalidRoomCode, roomCode))
	}

	state, err := s.store.FetchByCode(ctx, code)
	if err != nil {
		if !errors.Is(err, shared.ErrRoomNotFound) {
			err = fmt.Errorf("failed to load room %s: %w", code, err)
		}
		return s.failLoad(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = &state
	s.conf = Confirmed
	s.phase = Loaded
	s.scheduleLocked()
	s.logger.Debug("room loaded", "room", state.RoomCode, "playing", state.IsPlaying, "position", state.PositionMs)
	return state, nil
}

// failLoad drops the held room and its subscription.
func (s *Sync) failLoad(err error) (models.RoomState, error) {
	s.mu.Lock()
	sub := s.sub
	s.phase = Failed
	s.lastErr = err
	s.state = nil
	s.conf = 0
	s.scheduleLocked()
	s.mu.Unlock()

	s.release(sub)
	return models.RoomState{}, err
}

func (s *Sync) release(sub *Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		s.logger.Warn("failed to release subscription", "room", sub.code, "err", err)
	}
}

// CreateRoom inserts a paused, empty room under a freshly generated code and loads it.
//
// The host, when given, is recorded as the first member.
func (s *Sync) CreateRoom(ctx context.Context, hostUserID string) (models.RoomState, error) {
	for range maxCodeAttempts {
		code, err := s.codeGen()
		if err != nil {
			return models.RoomState{}, err
		}

		room := models.NewRoomState(shared.GenerateID(), code, hostUserID, s.now())
		err = s.store.CreateRoom(ctx, room)
		if errors.Is(err, shared.ErrRoomCodeTaken) {
			s.logger.Debug("room code collision", "code", room.RoomCode)
			continue
		}
		if err != nil {
			return models.RoomState{}, fmt.Errorf("failed to create room: %w", err)
		}

		if hostUserID != "" {
			if err := s.store.AddMember(ctx, room.ID, hostUserID); err != nil {
				return models.RoomState{}, fmt.Errorf("failed to add host to room: %w", err)
			}
		}

		s.mu.Lock()
		s.state = &room
		s.conf = Confirmed
		s.phase = Loaded
		s.lastErr = nil
		s.mu.Unlock()
		return room, nil
	}
	return models.RoomState{}, shared.ErrRoomCodeExhausted
}

// JoinRoom loads the room and records userID as a member when non-empty.
func (s *Sync) JoinRoom(ctx context.Context, roomCode, userID string) (models.RoomState, error) {
	state, err := s.LoadRoom(ctx, roomCode)
	if err != nil {
		return state, err
	}
	if userID == "" {
		return state, nil
	}
	if err := s.store.AddMember(ctx, state.ID, userID); err != nil {
		return state, fmt.Errorf("failed to join room %s: %w", state.RoomCode, err)
	}
	return state, nil
}

// History returns the event log of the held room.
func (s *Sync) History(ctx context.Context) ([]models.RoomEvent, error) {
	state, err := s.Current()
	if err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, state.ID)
}

// Close releases the active subscription, if any.
func (s *Sync) Close() error {
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Close()
}
