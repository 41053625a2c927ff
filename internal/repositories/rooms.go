package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/shared"
)

const roomColumns = "id, room_code, host_user_id, is_playing, position_ms, updated_at_ms, current_track"

// RoomRepository persists [models.RoomState] rows.
type RoomRepository struct {
	db *sql.DB
}

// NewRoomRepository creates a new [RoomRepository] with the given database connection
func NewRoomRepository(db *sql.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// Create inserts a room, wrapping [shared.ErrRoomCodeTaken] when the code is already used.
func (r *RoomRepository) Create(ctx context.Context, room models.RoomState) error {
	room.RoomCode = models.NormalizeRoomCode(room.RoomCode)
	if err := room.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	track, err := encodeTrack(room.CurrentTrack)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rooms (id, room_code, host_user_id, is_playing, position_ms, updated_at_ms, current_track)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		room.ID, room.RoomCode, nullString(room.HostUserID), room.IsPlaying, room.PositionMs, room.UpdatedAtMs, track)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", shared.ErrRoomCodeTaken, room.RoomCode)
	}
	if err != nil {
		return fmt.Errorf("failed to insert room: %w", err)
	}
	return nil
}

// GetByCode retrieves a room by its case-insensitive code.
func (r *RoomRepository) GetByCode(ctx context.Context, code string) (models.RoomState, error) {
	code = models.NormalizeRoomCode(code)
	row := r.db.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE room_code = ?", code)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return room, fmt.Errorf("%w: %s", shared.ErrRoomNotFound, code)
	}
	return room, err
}

// Get retrieves a room by id.
func (r *RoomRepository) Get(ctx context.Context, id string) (models.RoomState, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = ?", id)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return room, fmt.Errorf("%w: %s", shared.ErrRoomNotFound, id)
	}
	return room, err
}

// Update writes the non-nil fields of u.
func (r *RoomRepository) Update(ctx context.Context, id string, u models.RoomUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	if u.IsPlaying != nil {
		sets = append(sets, "is_playing = ?")
		args = append(args, *u.IsPlaying)
	}
	if u.PositionMs != nil {
		if *u.PositionMs < 0 {
			return fmt.Errorf("%w: negative position %d", shared.ErrInvalidInput, *u.PositionMs)
		}
		sets = append(sets, "position_ms = ?")
		args = append(args, *u.PositionMs)
	}
	if u.UpdatedAtMs != nil {
		sets = append(sets, "updated_at_ms = ?")
		args = append(args, *u.UpdatedAtMs)
	}
	if u.CurrentTrack != nil {
		track, err := encodeTrack(u.CurrentTrack)
		if err != nil {
			return err
		}
		sets = append(sets, "current_track = ?")
		args = append(args, track)
	}
	args = append(args, id)

	result, err := r.db.ExecContext(ctx, "UPDATE rooms SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRoomNotFound, id)
	}
	return nil
}

// List returns every room ordered by code.
func (r *RoomRepository) List(ctx context.Context) ([]models.RoomState, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+roomColumns+" FROM rooms ORDER BY room_code ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []models.RoomState
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return rooms, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (models.RoomState, error) {
	var (
		room  models.RoomState
		host  sql.NullString
		track sql.NullString
	)
	err := row.Scan(&room.ID, &room.RoomCode, &host, &room.IsPlaying, &room.PositionMs, &room.UpdatedAtMs, &track)
	if errors.Is(err, sql.ErrNoRows) {
		return room, err
	}
	if err != nil {
		return room, fmt.Errorf("failed to scan room: %w", err)
	}

	room.HostUserID = host.String
	if room.CurrentTrack, err = decodeTrack(track); err != nil {
		return room, err
	}
	return room, nil
}
