package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/crossplay/internal/formatter"
	"github.com/desertthunder/crossplay/internal/models"
)

var _ list.Item = trackItem{}

// trackItem wraps [models.UniversalTrack] to implement [list.Item].
type trackItem struct {
	track models.UniversalTrack
}

func (i trackItem) FilterValue() string { return i.track.Title }
func (i trackItem) Title() string       { return i.track.Title }
func (i trackItem) Description() string {
	desc := i.track.Artist
	if i.track.DurationMs > 0 {
		desc = fmt.Sprintf("%s • %s", desc, formatter.FormatPosition(i.track.DurationMs))
	}
	if i.track.ISRC != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.ISRC)
	}
	return desc
}

func trackItems(tracks []models.UniversalTrack) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, t := range tracks {
		items[i] = trackItem{track: t}
	}
	return items
}
