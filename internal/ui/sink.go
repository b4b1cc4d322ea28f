package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/witransfer/witransfer/internal/discovery"
	"github.com/witransfer/witransfer/internal/logging"
)

// PlainSink prints one styled line per peer that appears or disappears
// between consecutive snapshots
type PlainSink struct {
	printer *Printer

	mu    sync.Mutex
	known map[netip.AddrPort]discovery.PeerEntry
}

// NewPlainSink creates a sink writing through p
func NewPlainSink(p *Printer) *PlainSink {
	return &PlainSink{
		printer: p,
		known:   make(map[netip.AddrPort]discovery.PeerEntry),
	}
}

// OnChange implements discovery.DisplaySink
func (s *PlainSink) OnChange(peers []discovery.PeerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[netip.AddrPort]discovery.PeerEntry, len(peers))
	for _, peer := range peers {
		current[peer.Address] = peer
		if _, ok := s.known[peer.Address]; !ok {
			s.printer.Println(FormatPeerLine(AddedMarker, peer))
		}
	}
	// Snapshots are sorted, so iterate the previous one in order as well
	for _, peer := range sortedEntries(s.known) {
		if _, ok := current[peer.Address]; !ok {
			s.printer.Println(FormatPeerLine(RemovedMarker, peer))
		}
	}
	s.known = current
}

// Count returns the number of peers currently shown
func (s *PlainSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.known)
}

// FormatPeerLine renders "<marker> <label>  <address>  <platform>/<distro>"
func FormatPeerLine(marker string, peer discovery.PeerEntry) string {
	style := PeerAddedStyle
	if marker == RemovedMarker {
		style = PeerRemovedStyle
	}

	meta := []string{peer.Address.String()}
	if platform := PlatformSummary(peer); platform != "" {
		meta = append(meta, platform)
	}
	if peer.ConcurrencyHint > 0 {
		meta = append(meta, fmt.Sprintf("%d threads", peer.ConcurrencyHint))
	}
	if peer.Via != "" && peer.Via != discovery.ViaBroadcast {
		meta = append(meta, "via "+peer.Via)
	}

	return fmt.Sprintf("  %s %s  %s",
		style.Render(marker),
		PeerLabelStyle.Render(peer.Label),
		PeerMetaStyle.Render(strings.Join(meta, "  ")),
	)
}

// PlatformSummary returns "Platform/Distro", omitting empty parts
func PlatformSummary(peer discovery.PeerEntry) string {
	var parts []string
	if peer.Descriptor.Platform != "" {
		parts = append(parts, peer.Descriptor.Platform)
	}
	if peer.Descriptor.Distro != "" && peer.Descriptor.Distro != peer.Descriptor.Platform {
		parts = append(parts, peer.Descriptor.Distro)
	}
	return strings.Join(parts, "/")
}

func sortedEntries(m map[netip.AddrPort]discovery.PeerEntry) []discovery.PeerEntry {
	result := make([]discovery.PeerEntry, 0, len(m))
	for _, entry := range m {
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b discovery.PeerEntry) int {
		return a.Address.Compare(b.Address)
	})
	return result
}

// Snapshot is one JSON line written by JSONSink
type Snapshot struct {
	Time  time.Time             `json:"time"`
	Count int                   `json:"count"`
	Peers []discovery.PeerEntry `json:"peers"`
}

// JSONSink writes one JSON snapshot per line for every change
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

// NewJSONSink creates a sink writing newline-delimited JSON to w
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w), now: time.Now}
}

// OnChange implements discovery.DisplaySink
func (s *JSONSink) OnChange(peers []discovery.PeerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if peers == nil {
		peers = []discovery.PeerEntry{}
	}
	if err := s.enc.Encode(Snapshot{Time: s.now().UTC(), Count: len(peers), Peers: peers}); err != nil {
		logging.Warn("Failed to write JSON snapshot", zap.Error(err))
	}
}
