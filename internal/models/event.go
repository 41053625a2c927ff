package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType enumerates the kinds of [RoomEvent].
type EventType string

const (
	EventPlaybackUpdate EventType = "PLAYBACK_UPDATE"
	EventSetTrack       EventType = "SET_TRACK"
)

// RoomEvent is an append-only audit record of a change to a room.
type RoomEvent struct {
	ID          string          `json:"id,omitempty"`
	RoomID      string          `json:"room_id"`
	Type        EventType       `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	ActorUserID string          `json:"actor_user_id"`
	CreatedAt   time.Time       `json:"created_at,omitzero"`
}

// NewRoomEvent marshals payload into a new event.
func NewRoomEvent(roomID string, kind EventType, payload any, actor string) (RoomEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return RoomEvent{}, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return RoomEvent{
		RoomID:      roomID,
		Type:        kind,
		Payload:     data,
		ActorUserID: actor,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Validate checks that the event can be persisted.
func (e RoomEvent) Validate() error {
	if e.RoomID == "" {
		return fmt.Errorf("event room id is required")
	}
	switch e.Type {
	case EventPlaybackUpdate, EventSetTrack:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.ActorUserID == "" {
		return fmt.Errorf("event actor is required")
	}
	return nil
}

// PlaybackPayload decodes a PLAYBACK_UPDATE payload.
func (e RoomEvent) PlaybackPayload() (RoomUpdate, error) {
	var u RoomUpdate
	if e.Type != EventPlaybackUpdate {
		return u, fmt.Errorf("event %s is not a playback update", e.Type)
	}
	if err := json.Unmarshal(e.Payload, &u); err != nil {
		return u, fmt.Errorf("failed to decode playback payload: %w", err)
	}
	return u, nil
}

// TrackPayload decodes a SET_TRACK payload.
func (e RoomEvent) TrackPayload() (UniversalTrack, error) {
	var t UniversalTrack
	if e.Type != EventSetTrack {
		return t, fmt.Errorf("event %s is not a track change", e.Type)
	}
	if err := json.Unmarshal(e.Payload, &t); err != nil {
		return t, fmt.Errorf("failed to decode track payload: %w", err)
	}
	return t, nil
}
