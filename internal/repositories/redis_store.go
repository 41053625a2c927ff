package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/roomsync"
	"github.com/desertthunder/crossplay/internal/shared"
	"github.com/redis/go-redis/v9"
)

const updateAttempts = 3

func roomKey(id string) string { return fmt.Sprintf("rooms:%s", id) }
func codeKey(code string) string { return fmt.Sprintf("rooms:code:%s", code) }
func eventsKey(id string) string { return fmt.Sprintf("rooms:%s:events", id) }
func membersKey(id string) string { return fmt.Sprintf("rooms:%s:members", id) }
func changesChannel(id string) string { return fmt.Sprintf("rooms:%s:changes", id) }

// createRoom claims the code index and stores the room document in one step.
var createRoom = redis.NewScript(`
	if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
		return 0
	end
	redis.call('SET', KEYS[2], ARGV[2])
	return 1
`)

// RedisStore is a [roomsync.RoomStore] backed by Redis. Rooms are JSON documents and every
// committed Update is published on the room's changes channel.
type RedisStore struct {
	rdb    *redis.Client
	logger *log.Logger
}

var _ roomsync.RoomStore = (*RedisStore)(nil)

// NewRedisStore creates a [RedisStore] over rdb.
func NewRedisStore(rdb *redis.Client, logger *log.Logger) *RedisStore {
	if logger == nil {
		logger = log.Default()
	}
	return &RedisStore{rdb: rdb, logger: logger}
}

// OpenRedis connects to the server described by cfg and verifies it answers.
func OpenRedis(ctx context.Context, cfg shared.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("%w: redis %s: %v", shared.ErrServiceUnavailable, cfg.Addr, err)
	}
	return rdb, nil
}

func (s *RedisStore) FetchByCode(ctx context.Context, code string) (models.RoomState, error) {
	code = models.NormalizeRoomCode(code)
	id, err := s.rdb.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return models.RoomState{}, fmt.Errorf("%w: %s", shared.ErrRoomNotFound, code)
	}
	if err != nil {
		return models.RoomState{}, fmt.Errorf("failed to resolve room code: %w", err)
	}
	return s.get(ctx, s.rdb, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, g getter, id string) (models.RoomState, error) {
	b, err := g.Get(ctx, roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.RoomState{}, fmt.Errorf("%w: %s", shared.ErrRoomNotFound, id)
	}
	if err != nil {
		return models.RoomState{}, fmt.Errorf("failed to read room: %w", err)
	}

	var room models.RoomState
	if err := json.Unmarshal(b, &room); err != nil {
		return models.RoomState{}, fmt.Errorf("failed to decode room: %w", err)
	}
	return room, nil
}

// Update merges u into the stored document and publishes the result. Concurrent writers
// to the same room are retried so no field of a partial update is lost.
func (s *RedisStore) Update(ctx context.Context, roomID string, u models.RoomUpdate) error {
	if u.IsEmpty() {
		return nil
	}
	if u.PositionMs != nil && *u.PositionMs < 0 {
		return fmt.Errorf("%w: negative position %d", shared.ErrInvalidInput, *u.PositionMs)
	}

	key := roomKey(roomID)
	txf := func(tx *redis.Tx) error {
		room, err := s.get(ctx, tx, roomID)
		if err != nil {
			return err
		}

		b, err := json.Marshal(room.Apply(u))
		if err != nil {
			return fmt.Errorf("failed to encode room: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			pipe.Publish(ctx, changesChannel(roomID), b)
			return nil
		})
		return err
	}

	for range updateAttempts {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to update room: %w", err)
		}
		return nil
	}
	return fmt.Errorf("failed to update room %s: too much contention", roomID)
}

func (s *RedisStore) InsertEvent(ctx context.Context, e models.RoomEvent) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.ID == "" {
		e.ID = shared.NewEventID(e.CreatedAt)
	}

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := s.rdb.RPush(ctx, eventsKey(e.RoomID), b).Err(); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *RedisStore) ListEvents(ctx context.Context, roomID string) ([]models.RoomEvent, error) {
	raw, err := s.rdb.LRange(ctx, eventsKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	events := make([]models.RoomEvent, 0, len(raw))
	for _, r := range raw {
		var e models.RoomEvent
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			s.logger.Warn("skipping undecodable event", "room", roomID, "error", err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

func (s *RedisStore) CreateRoom(ctx context.Context, room models.RoomState) error {
	room.RoomCode = models.NormalizeRoomCode(room.RoomCode)
	if err := room.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	b, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to encode room: %w", err)
	}

	created, err := createRoom.Run(ctx, s.rdb, []string{codeKey(room.RoomCode), roomKey(room.ID)}, room.ID, b).Int()
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRoomCodeTaken, room.RoomCode)
	}
	return nil
}

func (s *RedisStore) AddMember(ctx context.Context, roomID, userID string) error {
	if err := s.rdb.HSetNX(ctx, membersKey(roomID), userID, time.Now().UnixMilli()).Err(); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// Members returns the members of roomID in join order.
func (s *RedisStore) Members(ctx context.Context, roomID string) ([]models.Member, error) {
	raw, err := s.rdb.HGetAll(ctx, membersKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read members: %w", err)
	}

	members := make([]models.Member, 0, len(raw))
	for userID, joined := range raw {
		ms, _ := strconv.ParseInt(joined, 10, 64)
		members = append(members, models.Member{RoomID: roomID, UserID: userID, JoinedAt: time.UnixMilli(ms).UTC()})
	}
	slices.SortFunc(members, func(a, b models.Member) int { return a.JoinedAt.Compare(b.JoinedAt) })
	return members, nil
}

// Subscribe listens on the room's changes channel until the handle is released or ctx is done.
func (s *RedisStore) Subscribe(ctx context.Context, roomID string, fn func(models.RoomState)) (roomsync.Handle, error) {
	pubsub := s.rdb.Subscribe(ctx, changesChannel(roomID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to room %s: %w", roomID, err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			var room models.RoomState
			if err := json.Unmarshal([]byte(msg.Payload), &room); err != nil {
				s.logger.Warn("dropping undecodable change", "room", roomID, "error", err)
				continue
			}
			fn(room)
		}
	}()

	var (
		once     sync.Once
		closeErr error
	)
	release := func() {
		once.Do(func() { closeErr = pubsub.Close() })
	}
	stop := context.AfterFunc(ctx, release)

	return roomsync.HandleFunc(func() error {
		stop()
		release()
		return closeErr
	}), nil
}
