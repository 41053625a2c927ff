package models

import (
	"fmt"
	"strings"
	"time"
)

// User is a participant identified by a unique username.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// NormalizeUsername trims a username; usernames are otherwise case-sensitive.
func NormalizeUsername(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("username is required")
	}
	return name, nil
}

// Member is a user's membership in a room.
type Member struct {
	RoomID   string    `json:"room_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at,omitzero"`
}
