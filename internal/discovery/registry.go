package discovery

import (
	"context"
	"net/netip"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/witransfer/witransfer/internal/logging"
	"github.com/witransfer/witransfer/internal/protocol"
)

// Admission is the outcome of offering a sighting to the registry
type Admission int

const (
	// Admitted means a new peer entry was inserted
	Admitted Admission = iota
	// RejectForeign means the protocol tag did not match
	RejectForeign
	// RejectSelf means the sighting came from one of our own addresses
	RejectSelf
	// RejectDuplicate means the address is already known
	RejectDuplicate
)

// String returns the admission name used in logs
func (a Admission) String() string {
	switch a {
	case Admitted:
		return "admitted"
	case RejectForeign:
		return "foreign"
	case RejectSelf:
		return "self"
	case RejectDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Registry is the deduplicated, address-keyed table of discovered peers.
// The consumer and sweeper goroutines mutate it; readers go through the
// RWMutex.
type Registry struct {
	// notifyMu is taken before mu by every mutation that notifies the sink
	// and held until the sink returns, so snapshots arrive in table order.
	notifyMu sync.Mutex

	mu    sync.RWMutex
	peers map[netip.AddrPort]PeerEntry

	// self is fixed at construction and read without locking
	self map[netip.AddrPort]struct{}

	sink DisplaySink
	ttl  time.Duration
	now  func() time.Time
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithClock overrides the time source used for FirstSeen/LastSeen and expiry
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithTTL enables expiry of peers not seen for ttl
func WithTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		r.ttl = ttl
	}
}

// NewRegistry creates an empty registry. self lists the local bound
// addresses that must never be admitted. sink may be nil.
func NewRegistry(self []netip.AddrPort, sink DisplaySink, opts ...RegistryOption) *Registry {
	r := &Registry{
		peers: make(map[netip.AddrPort]PeerEntry),
		self:  make(map[netip.AddrPort]struct{}, len(self)),
		sink:  sink,
		now:   time.Now,
	}
	for _, addr := range self {
		r.self[normalize(addr)] = struct{}{}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// normalize strips IPv4-in-IPv6 mapping so keys compare consistently
func normalize(addr netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
}

// IsSelf reports whether addr is one of the local bound addresses
func (r *Registry) IsSelf(addr netip.AddrPort) bool {
	_, ok := r.self[normalize(addr)]
	return ok
}

// Admit applies the admission rules to an envelope received from addr.
// The outcome depends only on the tag, the address and table membership.
func (r *Registry) Admit(env protocol.Envelope, from netip.AddrPort) Admission {
	return r.admit(Sighting{Envelope: env, From: from, Via: ViaBroadcast})
}

func (r *Registry) admit(s Sighting) Admission {
	if s.Envelope.IsForeign() {
		return RejectForeign
	}

	from := normalize(s.From)
	if r.IsSelf(from) {
		return RejectSelf
	}

	now := r.now()

	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	if existing, ok := r.peers[from]; ok {
		existing.LastSeen = now
		r.peers[from] = existing
		r.mu.Unlock()
		return RejectDuplicate
	}

	entry := PeerEntry{
		Address:         from,
		Label:           s.Envelope.Descriptor.Label(),
		Descriptor:      s.Envelope.Descriptor,
		Advertised:      s.Envelope.SourceAddress,
		ConcurrencyHint: s.Envelope.ConcurrencyHint,
		Via:             s.Via,
		FirstSeen:       now,
		LastSeen:        now,
	}
	r.peers[from] = entry
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	logging.LogPeerEvent("discovered", entry.Address, entry.Label)
	r.notify(snapshot)
	return Admitted
}

// List returns a snapshot of all peers ordered by address
func (r *Registry) List() []PeerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Get returns the peer stored under addr
func (r *Registry) Get(addr netip.AddrPort) (PeerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.peers[normalize(addr)]
	if !ok {
		return PeerEntry{}, ErrPeerNotFound
	}
	return entry, nil
}

// Remove deletes the peer stored under addr and returns it
func (r *Registry) Remove(addr netip.AddrPort) (PeerEntry, error) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	key := normalize(addr)
	entry, ok := r.peers[key]
	if !ok {
		r.mu.Unlock()
		return PeerEntry{}, ErrPeerNotFound
	}
	delete(r.peers, key)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	logging.LogPeerEvent("removed", entry.Address, entry.Label)
	r.notify(snapshot)
	return entry, nil
}

// Len returns the number of known peers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Expire removes every peer whose LastSeen is older than the TTL and
// returns the removed entries. It is a no-op when no TTL is configured.
func (r *Registry) Expire() []PeerEntry {
	if r.ttl <= 0 {
		return nil
	}

	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []PeerEntry
	for addr, entry := range r.peers {
		if entry.LastSeen.Before(cutoff) {
			expired = append(expired, entry)
			delete(r.peers, addr)
		}
	}
	if len(expired) == 0 {
		r.mu.Unlock()
		return nil
	}
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	sortPeers(expired)
	for _, entry := range expired {
		logging.LogPeerEvent("expired", entry.Address, entry.Label)
	}
	r.notify(snapshot)
	return expired
}

// Run consumes sightings until ctx is cancelled or the queue is closed
func (r *Registry) Run(ctx context.Context, queue <-chan Sighting) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-queue:
			if !ok {
				return nil
			}
			outcome := r.admit(s)
			if outcome != Admitted {
				logging.Debug("Sighting rejected",
					zap.Stringer("from", s.From),
					zap.Stringer("reason", outcome),
					zap.String("via", s.Via),
				)
			}
		}
	}
}

// RunSweeper calls Expire every interval until ctx is cancelled
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Expire()
		}
	}
}

func (r *Registry) notify(snapshot []PeerEntry) {
	if r.sink != nil {
		r.sink.OnChange(snapshot)
	}
}

func (r *Registry) snapshotLocked() []PeerEntry {
	result := make([]PeerEntry, 0, len(r.peers))
	for _, entry := range r.peers {
		result = append(result, entry)
	}
	sortPeers(result)
	return result
}

func sortPeers(peers []PeerEntry) {
	slices.SortFunc(peers, func(a, b PeerEntry) int {
		return a.Address.Compare(b.Address)
	})
}
