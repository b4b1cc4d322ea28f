package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/witransfer/witransfer/internal/discovery"
)

// Sink hands registry snapshots to the TUI. It holds at most one pending
// snapshot; a newer one replaces it, so OnChange never blocks the registry.
type Sink struct {
	ch chan []discovery.PeerEntry
}

// NewSink creates an empty sink
func NewSink() *Sink {
	return &Sink{ch: make(chan []discovery.PeerEntry, 1)}
}

// OnChange implements discovery.DisplaySink
func (s *Sink) OnChange(peers []discovery.PeerEntry) {
	for {
		select {
		case s.ch <- peers:
			return
		default:
		}
		// Drop the stale snapshot and retry
		select {
		case <-s.ch:
		default:
		}
	}
}

// Updates returns the channel the model reads from
func (s *Sink) Updates() <-chan []discovery.PeerEntry {
	return s.ch
}

// peersMsg carries a snapshot into the bubbletea update loop
type peersMsg []discovery.PeerEntry

// waitForPeers blocks until the next snapshot arrives
func waitForPeers(ch <-chan []discovery.PeerEntry) tea.Cmd {
	return func() tea.Msg {
		peers, ok := <-ch
		if !ok {
			return nil
		}
		return peersMsg(peers)
	}
}
