package ui

import (
	"github.com/charmbracelet/lipgloss"
)

const (
	accent = lipgloss.Color("#7D56F4")
	green  = lipgloss.Color("#04B575")
	red    = lipgloss.Color("#FF0000")
	amber  = lipgloss.Color("#FFA500")
	muted  = lipgloss.Color("#626262")
)

var styles = roomPalette()

// Palette holds the styles used by the room view.
type Palette struct {
	title lipgloss.Style
	code  lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func roomPalette() Palette {
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

	return Palette{
		title: fg(accent).Bold(true).MarginBottom(1),
		code: fg(accent).Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent),
		ok:   fg(green).Bold(true),
		err:  fg(red).Bold(true),
		warn: fg(amber),
		help: fg(muted).Italic(true),
	}
}
