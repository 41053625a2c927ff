package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/crossplay/internal/formatter"
	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/roomsync"
	"github.com/desertthunder/crossplay/internal/services"
)

// SeekStepMs is how far the arrow keys move the position.
const SeekStepMs = 10_000

const maxBarWidth = 60

// ViewState represents the current view in the TUI.
type ViewState int

const (
	RoomView ViewState = iota
	SearchView
)

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	sync     *roomsync.Sync
	catalog  services.Catalog
	code     string
	sub      *roomsync.Subscription
	updates  chan models.RoomState
	proj     roomsync.Projection
	ticking  bool
	interval time.Duration
	status   string
	statusOK bool
	input    textinput.Model
	results  list.Model
	busy     bool
	bar      progress.Model
	width    int
	height   int
	err      error
	help     help.Model
	keys     keyMap
}

// NewModel creates a room view for roomCode. catalog may be nil, which disables search.
func NewModel(ctx context.Context, sync *roomsync.Sync, catalog services.Catalog, roomCode string) *Model {
	input := textinput.New()
	input.Placeholder = "artist or title"
	input.Prompt = "/ "
	input.CharLimit = 120

	results := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	results.Title = "Results"
	results.SetFilteringEnabled(false)
	results.SetShowHelp(false)

	return &Model{
		ctx:      ctx,
		view:     RoomView,
		sync:     sync,
		catalog:  catalog,
		code:     models.NormalizeRoomCode(roomCode),
		updates:  make(chan models.RoomState, 1),
		interval: time.Second,
		input:    input,
		results:  results,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init subscribes to the room.
func (m *Model) Init() tea.Cmd {
	return m.subscribe()
}

// Close releases the room subscription.
func (m *Model) Close() error {
	if m.sub == nil {
		return nil
	}
	return m.sub.Close()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(max(msg.Width-16, 10), maxBarWidth)
		m.results.SetSize(msg.Width-4, max(msg.Height-10, 5))
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case SearchView:
			return m.handleSearchKeys(msg)
		default:
			return m.handleRoomKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	if m.view == SearchView && m.input.Focused() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSubscribed:
		data := msg.data.(subscribed)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.sub = data.sub
		m.refresh()
		return m, tea.Batch(m.waitForUpdate(), m.waitForNotice(), m.scheduleTick())

	case MsgRoomUpdated:
		m.refresh()
		return m, tea.Batch(m.waitForUpdate(), m.scheduleTick())

	case MsgTick:
		m.ticking = false
		m.refresh()
		return m, m.scheduleTick()

	case MsgActionDone:
		data := msg.data.(actionDone)
		m.busy = false
		if data.err != nil {
			m.setStatus(fmt.Sprintf("%s failed: %v", data.name, data.err), false)
		}
		m.refresh()
		return m, m.scheduleTick()

	case MsgSearchDone:
		data := msg.data.(searchDone)
		m.busy = false
		if data.err != nil {
			m.setStatus(fmt.Sprintf("search failed: %v", data.err), false)
			return m, nil
		}
		m.results.SetItems(trackItems(data.tracks))
		m.results.Select(0)
		m.input.Blur()
		m.setStatus(fmt.Sprintf("%d results for %q", len(data.tracks), data.query), true)
		return m, nil

	case MsgNotice:
		m.setStatus(msg.data.(roomsync.Notice).Message, false)
		return m, m.waitForNotice()
	}
	return m, nil
}

func (m *Model) handleRoomKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case m.err != nil || m.busy:
		return m, nil
	case key.Matches(msg, m.keys.toggle):
		return m, m.act("toggle", m.sync.TogglePlay)
	case key.Matches(msg, m.keys.back10):
		return m, m.seek(-SeekStepMs)
	case key.Matches(msg, m.keys.fwd10):
		return m, m.seek(SeekStepMs)
	case key.Matches(msg, m.keys.search):
		if m.catalog == nil {
			m.setStatus("search is not configured", false)
			return m, nil
		}
		m.view = SearchView
		m.input.SetValue("")
		return m, m.input.Focus()
	}
	return m, nil
}

func (m *Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.forceQuit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = RoomView
		m.input.Blur()
		return m, nil
	case key.Matches(msg, m.keys.enter):
		if m.input.Focused() {
			return m, m.search(m.input.Value())
		}
		if item, ok := m.results.SelectedItem().(trackItem); ok {
			m.view = RoomView
			track := item.track
			return m, m.act("track", func(ctx context.Context, cur models.RoomState) (models.RoomState, error) {
				return m.sync.SetTrack(ctx, cur, track)
			})
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.input.Focused() {
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	if key.Matches(msg, m.keys.search) {
		return m, m.input.Focus()
	}
	if key.Matches(msg, m.keys.quit) {
		return m, tea.Quit
	}
	m.results, cmd = m.results.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	m.proj = m.sync.Projection()
}

func (m *Model) setStatus(s string, ok bool) {
	m.status = s
	m.statusOK = ok
}

// scheduleTick arms the display tick when the room plays and no tick is pending.
func (m *Model) scheduleTick() tea.Cmd {
	if m.ticking || !m.proj.State.IsPlaying {
		return nil
	}
	m.ticking = true
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) act(name string, fn func(context.Context, models.RoomState) (models.RoomState, error)) tea.Cmd {
	current, err := m.sync.Current()
	if err != nil {
		m.setStatus(err.Error(), false)
		return nil
	}
	m.busy = true
	return func() tea.Msg {
		state, err := fn(m.ctx, current)
		return actionDoneMsg(name, state, err)
	}
}

func (m *Model) seek(deltaMs int64) tea.Cmd {
	return m.act("seek", func(ctx context.Context, cur models.RoomState) (models.RoomState, error) {
		return m.sync.SeekBy(ctx, cur, deltaMs)
	})
}

func (m *Model) search(query string) tea.Cmd {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	m.busy = true
	catalog := m.catalog
	return func() tea.Msg {
		tracks, err := catalog.Search(m.ctx, query)
		return searchDoneMsg(query, tracks, err)
	}
}

func (m *Model) subscribe() tea.Cmd {
	return func() tea.Msg {
		sub, err := m.sync.Subscribe(m.ctx, m.code, m.deliver)
		return subscribedMsg(sub, err)
	}
}

// deliver hands state to the UI loop, replacing any state not yet picked up.
func (m *Model) deliver(state models.RoomState) {
	for {
		select {
		case m.updates <- state:
			return
		default:
		}
		select {
		case <-m.updates:
		default:
		}
	}
}

func (m *Model) waitForUpdate() tea.Cmd {
	sub := m.sub
	return func() tea.Msg {
		select {
		case state := <-m.updates:
			return roomUpdatedMsg(state)
		case <-sub.Done():
			return nil
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) waitForNotice() tea.Cmd {
	notices := m.sync.Notices()
	return func() tea.Msg {
		select {
		case n := <-notices:
			return noticeMsg(n)
		case <-m.ctx.Done():
			return nil
		}
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case SearchView:
		return m.renderSearch()
	default:
		return m.renderRoom()
	}
}

func (m *Model) renderRoom() string {
	state := m.proj.State
	code := state.RoomCode
	if code == "" {
		code = m.code
	}

	var b strings.Builder
	b.WriteString(styles.code.Render(code))
	b.WriteString("\n\n")

	if state.CurrentTrack == nil {
		b.WriteString(styles.help.Render("No track selected"))
	} else {
		b.WriteString(styles.title.Render(state.CurrentTrack.String()))
	}
	b.WriteString("\n")

	if state.IsPlaying {
		b.WriteString(styles.ok.Render("▶ Playing"))
	} else {
		b.WriteString(styles.warn.Render("⏸ Paused"))
	}
	if m.proj.Confirmation == roomsync.Applied {
		b.WriteString(" " + styles.help.Render("(syncing)"))
	}
	b.WriteString("\n\n")

	b.WriteString(m.bar.ViewAs(m.ratio()))
	fmt.Fprintf(&b, " %s / %s\n", formatter.FormatPosition(m.proj.DisplayedMs), formatter.FormatPosition(state.DurationMs()))

	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.toggle, m.keys.back10, m.keys.fwd10, m.keys.search, m.keys.quit}))
	return b.String()
}

func (m *Model) renderSearch() string {
	title := "Search"
	if m.catalog != nil {
		title = fmt.Sprintf("Search %s", m.catalog.Provider())
	}

	parts := []string{styles.title.Render(title), m.input.View()}
	if m.busy {
		parts = append(parts, styles.help.Render("Searching..."))
	}
	if len(m.results.Items()) > 0 {
		parts = append(parts, m.results.View())
	}
	parts = append(parts, m.renderStatus())

	helpKeys := []key.Binding{m.keys.enter, m.keys.back}
	if !m.input.Focused() {
		helpKeys = append(helpKeys, m.keys.search, m.keys.quit)
	}
	parts = append(parts, m.help.ShortHelpView(helpKeys))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) renderStatus() string {
	if m.status == "" {
		return ""
	}
	if m.statusOK {
		return styles.ok.Render(m.status) + "\n"
	}
	return styles.warn.Render(m.status) + "\n"
}

func (m *Model) ratio() float64 {
	d := m.proj.State.DurationMs()
	if d <= 0 {
		return 0
	}
	return min(float64(m.proj.DisplayedMs)/float64(d), 1)
}
