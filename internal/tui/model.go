package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/witransfer/witransfer/internal/discovery"
	"github.com/witransfer/witransfer/internal/ui"
)

// statusInterval is how often the counters line refreshes
const statusInterval = time.Second

type statusTickMsg time.Time

// StatusFunc reports the current session counters
type StatusFunc func() discovery.Status

// keyMap defines key bindings for the peer list
type keyMap struct {
	Up    key.Binding
	Down  key.Binding
	Enter key.Binding
	Quit  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Enter, k.Quit},
	}
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "move down"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "select"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// peerItem wraps a PeerEntry for use with bubbles/list
type peerItem struct {
	peer discovery.PeerEntry
}

// FilterValue implements list.Item
func (p peerItem) FilterValue() string {
	return p.peer.Label + " " + p.peer.Address.String()
}

// peerDelegate renders each peer as a label row and a detail row
type peerDelegate struct{}

func (d peerDelegate) Height() int { return 2 }

func (d peerDelegate) Spacing() int { return 1 }

func (d peerDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d peerDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	pi, ok := item.(peerItem)
	if !ok {
		return
	}

	title := "  " + pi.peer.Label
	style := PeerStyle
	if index == m.Index() {
		title = "→ " + pi.peer.Label
		style = SelectedPeerStyle
	}

	fmt.Fprint(w, style.Render(title)+"\n"+DetailStyle.Render("    "+peerDetail(pi.peer)))
}

// peerDetail summarizes address, platform and channel for one peer
func peerDetail(peer discovery.PeerEntry) string {
	parts := []string{peer.Address.String()}
	if platform := ui.PlatformSummary(peer); platform != "" {
		parts = append(parts, platform)
	}
	if peer.ConcurrencyHint > 0 {
		parts = append(parts, fmt.Sprintf("%d threads", peer.ConcurrencyHint))
	}
	if peer.Via != "" {
		parts = append(parts, "via "+peer.Via)
	}
	return strings.Join(parts, " • ")
}

// Model is the live peer list screen
type Model struct {
	Local   string // Label of this host
	Peers   list.Model
	Spinner spinner.Model
	Help    help.Model
	Keys    keyMap
	Width   int
	Height  int

	updates  <-chan []discovery.PeerEntry
	status   StatusFunc
	current  discovery.Status
	selected *discovery.PeerEntry
}

// NewModel creates the peer list reading snapshots from sink. status may
// be nil.
func NewModel(local string, sink *Sink, status StatusFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	peers := list.New([]list.Item{}, peerDelegate{}, DefaultWidth-4, DefaultHeight-8)
	peers.Title = "Peers on this network"
	peers.Styles.Title = TitleStyle
	peers.SetShowStatusBar(false)
	peers.SetShowHelp(false)
	peers.SetFilteringEnabled(true)

	return Model{
		Local:   local,
		Peers:   peers,
		Spinner: s,
		Help:    help.New(),
		Keys:    defaultKeyMap(),
		updates: sink.Updates(),
		status:  status,
	}
}

// Init starts the spinner, the snapshot wait and the status ticker
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.Spinner.Tick,
		waitForPeers(m.updates),
		tickStatus(),
	)
}

func tickStatus() tea.Cmd {
	return tea.Tick(statusInterval, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// While filtering every key belongs to the filter input
		if m.Peers.FilterState() != list.Filtering {
			switch {
			case key.Matches(msg, m.Keys.Quit):
				return m, tea.Quit
			case key.Matches(msg, m.Keys.Enter):
				if item, ok := m.Peers.SelectedItem().(peerItem); ok {
					peer := item.peer
					m.selected = &peer
					return m, tea.Quit
				}
				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Peers.SetSize(msg.Width-4, msg.Height-8) // Leave room for header/footer

	case peersMsg:
		items := make([]list.Item, len(msg))
		for i, peer := range msg {
			items[i] = peerItem{peer: peer}
		}
		cmd = m.Peers.SetItems(items)
		return m, tea.Batch(cmd, waitForPeers(m.updates))

	case statusTickMsg:
		if m.status != nil {
			m.current = m.status()
		}
		return m, tickStatus()

	case spinner.TickMsg:
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	m.Peers, cmd = m.Peers.Update(msg)
	return m, cmd
}

// View renders the peer list screen
func (m Model) View() string {
	width := m.Width
	if width == 0 {
		width = DefaultWidth
	}

	var b strings.Builder
	b.WriteString(SubtitleStyle.Render("You are " + m.Local))
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")

	if len(m.Peers.Items()) == 0 {
		b.WriteString(lipgloss.JoinVertical(lipgloss.Left,
			TitleStyle.Render(m.Spinner.View()+" Listening for peers..."),
			"",
			SubtitleStyle.Render("Other WiTransfer instances on this network will appear here."),
		))
	} else {
		b.WriteString(m.Peers.View())
	}

	return renderContainer(b.String(), m.Help.View(m.Keys), width, m.Height)
}

func (m Model) statusLine() string {
	st := m.current
	line := StatusStyle.Render(fmt.Sprintf("sent %d • received %d • dropped %d • peers %d",
		st.Sent, st.Received, st.Dropped, len(m.Peers.Items())))

	switch {
	case st.State == discovery.StateRunning && !st.ListenerAlive:
		line += "  " + WarningStyle.Render(ui.WarningMarker+" not listening")
	case st.State == discovery.StateRunning && !st.AnnouncerAlive:
		line += "  " + WarningStyle.Render(ui.WarningMarker+" not announcing")
	case st.State == discovery.StateStopped:
		line += "  " + WarningStyle.Render(ui.WarningMarker+" stopped")
	}
	return line
}

// Selected returns the peer chosen with enter, if any
func (m Model) Selected() (discovery.PeerEntry, bool) {
	if m.selected == nil {
		return discovery.PeerEntry{}, false
	}
	return *m.selected, true
}
