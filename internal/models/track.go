package models

import (
	"fmt"
	"strings"
)

// UniversalTrack describes a track normalized across streaming providers.
//
// A nil provider reference means that provider cannot play the track natively.
type UniversalTrack struct {
	Title      string         `json:"title"`
	Artist     string         `json:"artist"`
	DurationMs int64          `json:"durationMs"`
	ISRC       string         `json:"isrc,omitempty"`
	Providers  TrackProviders `json:"providers"`
}

// TrackProviders holds the per-service identifiers of a [UniversalTrack].
type TrackProviders struct {
	Spotify *SpotifyRef `json:"spotify,omitempty"`
	Apple   *AppleRef   `json:"apple,omitempty"`
}

// SpotifyRef identifies a track in the Spotify catalog.
type SpotifyRef struct {
	ID  string `json:"id"`
	URI string `json:"uri,omitempty"`
	URL string `json:"url,omitempty"`
}

// AppleRef identifies a track in the Apple Music catalog.
type AppleRef struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// ProviderID returns the identifier the given provider plays this track by, or "" when absent.
//
// Spotify playback takes URIs, so the URI is preferred and built from the ID when missing.
func (t UniversalTrack) ProviderID(key ProviderKey) string {
	switch key {
	case ProviderSpotify:
		if t.Providers.Spotify == nil || t.Providers.Spotify.ID == "" {
			return ""
		}
		if t.Providers.Spotify.URI != "" {
			return t.Providers.Spotify.URI
		}
		return "spotify:track:" + t.Providers.Spotify.ID
	case ProviderAppleMusic:
		if t.Providers.Apple == nil {
			return ""
		}
		return t.Providers.Apple.ID
	default:
		return ""
	}
}

// SameAs reports whether two tracks refer to the same recording.
//
// ISRC wins when both carry one, then provider identifiers, then normalized title and artist.
func (t UniversalTrack) SameAs(o UniversalTrack) bool {
	if t.ISRC != "" && o.ISRC != "" {
		return strings.EqualFold(t.ISRC, o.ISRC)
	}
	if id := t.ProviderID(ProviderSpotify); id != "" && id == o.ProviderID(ProviderSpotify) {
		return true
	}
	if id := t.ProviderID(ProviderAppleMusic); id != "" && id == o.ProviderID(ProviderAppleMusic) {
		return true
	}
	return NormalizeTrackKey(t.Title, t.Artist) == NormalizeTrackKey(o.Title, o.Artist)
}

// String renders "Artist - Title".
func (t UniversalTrack) String() string {
	if t.Artist == "" {
		return t.Title
	}
	return fmt.Sprintf("%s - %s", t.Artist, t.Title)
}

// NormalizeTrackKey builds a lower-cased, whitespace-collapsed "title|artist" key for fuzzy matching.
func NormalizeTrackKey(title, artist string) string {
	norm := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return norm(title) + "|" + norm(artist)
}
