package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/shared"
)

// EventRepository appends to and reads the room event log.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new [EventRepository] with the given database connection
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert appends e, assigning an id and timestamp when missing.
func (r *EventRepository) Insert(ctx context.Context, e models.RoomEvent) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.ID == "" {
		e.ID = shared.NewEventID(e.CreatedAt)
	}

	query := `
		INSERT INTO room_events (id, room_id, type, payload, actor_user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, e.ID, e.RoomID, string(e.Type), string(e.Payload), e.ActorUserID, e.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// ListByRoom returns the events of roomID, oldest first.
func (r *EventRepository) ListByRoom(ctx context.Context, roomID string) ([]models.RoomEvent, error) {
	query := `
		SELECT id, room_id, type, payload, actor_user_id, created_at
		FROM room_events
		WHERE room_id = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.RoomEvent
	for rows.Next() {
		var (
			e       models.RoomEvent
			kind    string
			payload string
		)
		if err := rows.Scan(&e.ID, &e.RoomID, &kind, &payload, &e.ActorUserID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = models.EventType(kind)
		e.Payload = []byte(payload)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}
