// package formatter exports room event history to various formats (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/shared"
)

const timeLayout = "2006-01-02 15:04:05"

// Format is an export format accepted by [Export].
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatJSON     Format = "json"
)

// ParseFormat maps a flag value or file extension to a [Format].
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// History is a room's current state together with its event log, oldest first.
//
// Names maps user ids to usernames; unknown actors are printed by id.
type History struct {
	Room   models.RoomState   `json:"room"`
	Events []models.RoomEvent `json:"events"`
	Names  map[string]string  `json:"names,omitempty"`
}

func (h *History) actor(id string) string {
	if name, ok := h.Names[id]; ok && name != "" {
		return name
	}
	return id
}

// FormatPosition renders milliseconds as m:ss. Negative values render as 0:00.
func FormatPosition(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// Describe summarizes one event for humans, e.g. "play at 1:05" or "track Daft Punk - One More Time".
func Describe(e models.RoomEvent) string {
	switch e.Type {
	case models.EventPlaybackUpdate:
		u, err := e.PlaybackPayload()
		if err != nil {
			return "playback update (unreadable)"
		}

		verb := "seek"
		if u.IsPlaying != nil {
			verb = "pause"
			if *u.IsPlaying {
				verb = "play"
			}
		}
		if u.PositionMs == nil {
			return verb
		}
		if verb == "seek" {
			return "seek to " + FormatPosition(*u.PositionMs)
		}
		return verb + " at " + FormatPosition(*u.PositionMs)
	case models.EventSetTrack:
		t, err := e.TrackPayload()
		if err != nil {
			return "track change (unreadable)"
		}
		return "track " + t.String()
	default:
		return string(e.Type)
	}
}

func nowPlaying(room models.RoomState) string {
	state := "Paused"
	if room.IsPlaying {
		state = "Playing"
	}
	if room.CurrentTrack == nil {
		return state + " (no track)"
	}
	return fmt.Sprintf("%s %s [%s / %s]", state, room.CurrentTrack.String(),
		FormatPosition(room.PositionMs), FormatPosition(room.DurationMs()))
}

// ExportToCSV converts a History to CSV with columns: ID, Time, Actor, Type, Playing, Position, Track
func ExportToCSV(h *History) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Time", "Actor", "Type", "Playing", "Position", "Track"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range h.Events {
		var playing, position, track string

		switch e.Type {
		case models.EventPlaybackUpdate:
			if u, err := e.PlaybackPayload(); err == nil {
				if u.IsPlaying != nil {
					playing = strconv.FormatBool(*u.IsPlaying)
				}
				if u.PositionMs != nil {
					position = FormatPosition(*u.PositionMs)
				}
			}
		case models.EventSetTrack:
			if t, err := e.TrackPayload(); err == nil {
				track = t.String()
			}
		}

		record := []string{
			e.ID,
			e.CreatedAt.UTC().Format(timeLayout),
			h.actor(e.ActorUserID),
			string(e.Type),
			playing,
			position,
			track,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a History to a Markdown report.
func ExportToMarkdown(h *History) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Room %s\n\n", h.Room.RoomCode)
	if h.Room.HostUserID != "" {
		fmt.Fprintf(&buf, "**Host**: %s\n", h.actor(h.Room.HostUserID))
	}
	fmt.Fprintf(&buf, "**Now**: %s\n", nowPlaying(h.Room))
	fmt.Fprintf(&buf, "**Events**: %d\n\n", len(h.Events))

	buf.WriteString("## History\n\n")
	for i, e := range h.Events {
		fmt.Fprintf(&buf, "%d. `%s` **%s** %s\n", i+1, e.CreatedAt.UTC().Format(timeLayout), h.actor(e.ActorUserID), Describe(e))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a History to plain text.
func ExportToText(h *History) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Room: %s\n", h.Room.RoomCode)
	fmt.Fprintf(&buf, "Now: %s\n", nowPlaying(h.Room))
	fmt.Fprintf(&buf, "Events: %d\n\n", len(h.Events))

	for _, e := range h.Events {
		fmt.Fprintf(&buf, "%s  %-12s %s\n", e.CreatedAt.Local().Format(time.Kitchen), h.actor(e.ActorUserID), Describe(e))
	}

	return buf.Bytes(), nil
}

// ExportToJSON marshals the History, indented when pretty is set.
func ExportToJSON(h *History, pretty bool) ([]byte, error) {
	var data []byte
	var err error
	if pretty {
		data, err = json.MarshalIndent(h, "", "  ")
	} else {
		data, err = json.Marshal(h)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history: %w", err)
	}
	return data, nil
}

// Export renders h in format.
func Export(h *History, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(h)
	case FormatMarkdown:
		return ExportToMarkdown(h)
	case FormatText:
		return ExportToText(h)
	case FormatJSON:
		return ExportToJSON(h, true)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// DefaultFilename returns {code}_history.{ext} for format.
func DefaultFilename(code string, format Format) string {
	ext := map[Format]string{FormatCSV: "csv", FormatMarkdown: "md", FormatText: "txt", FormatJSON: "json"}[format]
	if ext == "" {
		ext = "txt"
	}
	return fmt.Sprintf("%s_history.%s", code, ext)
}

// WriteExport renders h in format and writes it to path, defaulting to [DefaultFilename].
// It returns the path written.
func WriteExport(h *History, format Format, path string) (string, error) {
	if path == "" {
		path = DefaultFilename(h.Room.RoomCode, format)
	}

	data, err := Export(h, format)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", format, err)
	}

	return path, nil
}
