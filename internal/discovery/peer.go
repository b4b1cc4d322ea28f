package discovery

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/witransfer/witransfer/internal/protocol"
)

// Channels a sighting can arrive on
const (
	ViaBroadcast = "broadcast"
	ViaMDNS      = "mdns"
)

// PeerEntry represents a discovered peer in the registry
type PeerEntry struct {
	// Address is the UDP source address of the peer; the registry key
	Address netip.AddrPort `json:"address"`

	// Label is derived from the first accepted descriptor (e.g., "Bob - bob-pc")
	Label string `json:"label"`

	// Descriptor is the metadata of the first accepted announcement
	Descriptor protocol.DeviceDescriptor `json:"device_info"`

	// Advertised is the ip_addr the peer claims for itself
	Advertised netip.Addr `json:"ip_addr"`

	// ConcurrencyHint is the peer's max_threads
	ConcurrencyHint int `json:"max_threads"`

	// Via is the channel the peer was first seen on
	Via string `json:"via"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// String returns a human-readable representation of the peer
func (p PeerEntry) String() string {
	return fmt.Sprintf("%s (%s)", p.Label, p.Address)
}

// Sighting is one decoded announcement together with where it came from
type Sighting struct {
	Envelope protocol.Envelope
	From     netip.AddrPort
	Via      string
}

// DisplaySink receives a snapshot of the peer table after every change.
// Calls never overlap and arrive in the order the changes were made. They
// come from the consumer or sweeper goroutine, so OnChange must return
// promptly and must not mutate the registry.
type DisplaySink interface {
	OnChange(peers []PeerEntry)
}

// SinkFunc adapts a function to DisplaySink
type SinkFunc func(peers []PeerEntry)

// OnChange implements DisplaySink
func (f SinkFunc) OnChange(peers []PeerEntry) {
	f(peers)
}

// MultiSink fans a snapshot out to several sinks in order
type MultiSink []DisplaySink

// OnChange implements DisplaySink
func (m MultiSink) OnChange(peers []PeerEntry) {
	for _, sink := range m {
		if sink != nil {
			sink.OnChange(peers)
		}
	}
}
