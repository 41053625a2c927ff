package models

// AuthorizationStatus is the device music library authorization status.
type AuthorizationStatus int

const (
	AuthorizationNotDetermined AuthorizationStatus = 0
	AuthorizationDenied        AuthorizationStatus = 1
	AuthorizationRestricted    AuthorizationStatus = 2
	AuthorizationAuthorized    AuthorizationStatus = 3
	AuthorizationUnavailable   AuthorizationStatus = -1
)

// Authorized reports whether s grants playback control. Only [AuthorizationAuthorized] does.
func (s AuthorizationStatus) Authorized() bool {
	return s == AuthorizationAuthorized
}

func (s AuthorizationStatus) String() string {
	switch s {
	case AuthorizationNotDetermined:
		return "not_determined"
	case AuthorizationDenied:
		return "denied"
	case AuthorizationRestricted:
		return "restricted"
	case AuthorizationAuthorized:
		return "authorized"
	case AuthorizationUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// PlaybackState is the device player state.
type PlaybackState int

const (
	PlaybackStopped PlaybackState = iota
	PlaybackPlaying
	PlaybackPaused
	PlaybackInterrupted
	PlaybackSeekingForward
	PlaybackSeekingBackward
)

func (p PlaybackState) String() string {
	switch p {
	case PlaybackStopped:
		return "stopped"
	case PlaybackPlaying:
		return "playing"
	case PlaybackPaused:
		return "paused"
	case PlaybackInterrupted:
		return "interrupted"
	case PlaybackSeekingForward:
		return "seeking_forward"
	case PlaybackSeekingBackward:
		return "seeking_backward"
	default:
		return ""
	}
}

// NowPlaying is what a device reports it is currently playing.
type NowPlaying struct {
	Title         string        `json:"title"`
	Artist        string        `json:"artist"`
	AlbumTitle    string        `json:"albumTitle"`
	DurationMs    int64         `json:"durationMs"`
	PositionMs    int64         `json:"positionMs,omitempty"`
	PlaybackState PlaybackState `json:"playbackState"`
}

// IsPlaying reports whether the device is actively playing.
func (n *NowPlaying) IsPlaying() bool {
	return n != nil && n.PlaybackState == PlaybackPlaying
}
