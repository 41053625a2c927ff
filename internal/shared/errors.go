package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTrackNotFound      = fmt.Errorf("track not found")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// Room errors
	ErrRoomNotFound      = fmt.Errorf("room not found")
	ErrRoomNotLoaded     = fmt.Errorf("room not loaded")
	ErrRoomCodeTaken     = fmt.Errorf("room code already in use")
	ErrRoomCodeExhausted = fmt.Errorf("failed to generate a unique room code")
	ErrInvalidRoomCode   = fmt.Errorf("invalid room code")

	// Synchronization errors
	ErrStoreWriteFailed    = fmt.Errorf("failed to persist room state")
	ErrNativeCommandFailed = fmt.Errorf("native playback command failed")
	ErrAuthorizationDenied = fmt.Errorf("playback authorization denied")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
