// package models defines the data model for the shared listening rooms
package models

import (
	"fmt"
	"strings"
	"time"
)

// ProviderKey identifies a streaming provider.
type ProviderKey string

const (
	ProviderSpotify    ProviderKey = "spotify"
	ProviderAppleMusic ProviderKey = "apple_music"
)

// ParseProviderKey maps user input ("spotify", "apple", "apple_music") to a [ProviderKey].
func ParseProviderKey(s string) (ProviderKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spotify":
		return ProviderSpotify, nil
	case "apple", "apple_music", "applemusic":
		return ProviderAppleMusic, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

// RoomState is the shared playback timeline of a room.
//
// PositionMs is the playback offset as of UpdatedAtMs (milliseconds since the epoch).
type RoomState struct {
	ID           string          `json:"id"`
	RoomCode     string          `json:"room_code"`
	HostUserID   string          `json:"host_user_id,omitempty"`
	IsPlaying    bool            `json:"is_playing"`
	PositionMs   int64           `json:"position_ms"`
	UpdatedAtMs  int64           `json:"updated_at_ms"`
	CurrentTrack *UniversalTrack `json:"current_track,omitempty"`
}

// NewRoomState returns a freshly created room: paused, at position zero, without a track.
func NewRoomState(id, code, hostUserID string, now time.Time) RoomState {
	return RoomState{
		ID:          id,
		RoomCode:    NormalizeRoomCode(code),
		HostUserID:  hostUserID,
		UpdatedAtMs: now.UnixMilli(),
	}
}

// Validate checks the invariants every stored room must satisfy.
func (r RoomState) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("room id is required")
	}
	if r.RoomCode == "" {
		return fmt.Errorf("room code is required")
	}
	if r.PositionMs < 0 {
		return fmt.Errorf("position must not be negative, got %d", r.PositionMs)
	}
	if r.CurrentTrack != nil && r.CurrentTrack.DurationMs < 0 {
		return fmt.Errorf("track duration must not be negative, got %d", r.CurrentTrack.DurationMs)
	}
	return nil
}

// DurationMs returns the current track's duration, or 0 when no track or duration is known.
func (r RoomState) DurationMs() int64 {
	if r.CurrentTrack == nil {
		return 0
	}
	return r.CurrentTrack.DurationMs
}

// Apply returns a copy of r with every field set in u overwritten.
func (r RoomState) Apply(u RoomUpdate) RoomState {
	if u.IsPlaying != nil {
		r.IsPlaying = *u.IsPlaying
	}
	if u.PositionMs != nil {
		r.PositionMs = *u.PositionMs
	}
	if u.UpdatedAtMs != nil {
		r.UpdatedAtMs = *u.UpdatedAtMs
	}
	if u.CurrentTrack != nil {
		t := *u.CurrentTrack
		r.CurrentTrack = &t
	}
	return r
}

// RoomUpdate is a partial write of room fields. Nil fields are left untouched by the store.
type RoomUpdate struct {
	IsPlaying    *bool           `json:"is_playing,omitempty"`
	PositionMs   *int64          `json:"position_ms,omitempty"`
	UpdatedAtMs  *int64          `json:"updated_at_ms,omitempty"`
	CurrentTrack *UniversalTrack `json:"current_track,omitempty"`
}

// IsEmpty reports whether the update carries no fields.
func (u RoomUpdate) IsEmpty() bool {
	return u.IsPlaying == nil && u.PositionMs == nil && u.UpdatedAtMs == nil && u.CurrentTrack == nil
}

// PlaybackIntent partially specifies a playback change requested by the local user.
type PlaybackIntent struct {
	IsPlaying  *bool
	PositionMs *int64
}

// Playing builds an intent that only changes the play flag.
func Playing(v bool) PlaybackIntent {
	return PlaybackIntent{IsPlaying: &v}
}

// At builds an intent that only changes the position.
func At(ms int64) PlaybackIntent {
	return PlaybackIntent{PositionMs: &ms}
}

// With returns a copy of the intent with the position set.
func (i PlaybackIntent) With(ms int64) PlaybackIntent {
	i.PositionMs = &ms
	return i
}

// NormalizeRoomCode trims and upper-cases a human-entered room code.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
