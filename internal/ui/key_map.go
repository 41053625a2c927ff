package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	toggle    key.Binding
	back10    key.Binding
	fwd10     key.Binding
	search    key.Binding
	enter     key.Binding
	back      key.Binding
	quit      key.Binding
	forceQuit key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		toggle:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
		back10:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "-10s")),
		fwd10:     key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "+10s")),
		search:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		enter:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		back:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		forceQuit: key.NewBinding(key.WithKeys("ctrl+c")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.toggle, k.search, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.toggle, k.back10, k.fwd10},
		{k.search, k.enter, k.back},
		{k.quit},
	}
}
