package discovery

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/witransfer/witransfer/internal/protocol"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingSink keeps every snapshot it receives
type recordingSink struct {
	mu        sync.Mutex
	snapshots [][]PeerEntry
}

func (s *recordingSink) OnChange(peers []PeerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, peers)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

func (s *recordingSink) last() []PeerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return nil
	}
	return s.snapshots[len(s.snapshots)-1]
}

func testEnvelope(name, host string) protocol.Envelope {
	return protocol.NewEnvelope(protocol.DeviceDescriptor{
		DisplayName:     name,
		UserName:        name,
		HostName:        host,
		Platform:        "Linux",
		Distro:          "Debian",
		ConcurrencyHint: 4,
	}, netip.MustParseAddr("192.168.1.99"))
}

var selfAddr = netip.MustParseAddrPort("192.168.1.10:54321")

func TestRegistry_Admit(t *testing.T) {
	peerAddr := netip.MustParseAddrPort("192.168.1.20:54321")
	foreign := testEnvelope("Eve", "eve-pc")
	foreign.ProtocolTag = "SomethingElse"

	tests := []struct {
		name    string
		env     protocol.Envelope
		from    netip.AddrPort
		want    Admission
		wantLen int
	}{
		{
			name:    "new peer",
			env:     testEnvelope("Bob", "bob-pc"),
			from:    peerAddr,
			want:    Admitted,
			wantLen: 1,
		},
		{
			name:    "foreign tag",
			env:     foreign,
			from:    peerAddr,
			want:    RejectForeign,
			wantLen: 0,
		},
		{
			name:    "own address",
			env:     testEnvelope("Me", "my-pc"),
			from:    selfAddr,
			want:    RejectSelf,
			wantLen: 0,
		},
		{
			name:    "own address IPv4-mapped",
			env:     testEnvelope("Me", "my-pc"),
			from:    netip.AddrPortFrom(netip.MustParseAddr("::ffff:192.168.1.10"), 54321),
			want:    RejectSelf,
			wantLen: 0,
		},
		{
			name:    "same host different port is a peer",
			env:     testEnvelope("Me", "my-pc"),
			from:    netip.MustParseAddrPort("192.168.1.10:40000"),
			want:    Admitted,
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry([]netip.AddrPort{selfAddr}, nil)

			if got := r.Admit(tt.env, tt.from); got != tt.want {
				t.Errorf("Admit() = %v, want %v", got, tt.want)
			}
			if got := r.Len(); got != tt.wantLen {
				t.Errorf("Len() = %d, want %d", got, tt.wantLen)
			}
		})
	}
}

func TestRegistry_IdempotentAdmission(t *testing.T) {
	clock := newFakeClock()
	sink := &recordingSink{}
	r := NewRegistry([]netip.AddrPort{selfAddr}, sink, WithClock(clock.Now))
	addr := netip.MustParseAddrPort("192.168.1.20:54321")

	if got := r.Admit(testEnvelope("Bob", "bob-pc"), addr); got != Admitted {
		t.Fatalf("first Admit() = %v, want %v", got, Admitted)
	}
	firstSeen := clock.Now()

	clock.Advance(5 * time.Second)
	if got := r.Admit(testEnvelope("Robert", "robert-pc"), addr); got != RejectDuplicate {
		t.Fatalf("second Admit() = %v, want %v", got, RejectDuplicate)
	}

	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	entry, err := r.Get(addr)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry.Label != "Bob - bob-pc" {
		t.Errorf("Label = %q, want label of the first envelope", entry.Label)
	}
	if !entry.FirstSeen.Equal(firstSeen) {
		t.Errorf("FirstSeen = %v, want %v", entry.FirstSeen, firstSeen)
	}
	if !entry.LastSeen.Equal(clock.Now()) {
		t.Errorf("LastSeen = %v, want refreshed to %v", entry.LastSeen, clock.Now())
	}

	if sink.count() != 1 {
		t.Errorf("sink notified %d times, want 1", sink.count())
	}
}

func TestRegistry_Confluence(t *testing.T) {
	bob := netip.MustParseAddrPort("192.168.1.20:54321")
	carol := netip.MustParseAddrPort("192.168.1.30:54321")
	foreign := testEnvelope("Eve", "eve-pc")
	foreign.ProtocolTag = "Other"

	sightings := []Sighting{
		{Envelope: testEnvelope("Bob", "bob-pc"), From: bob},
		{Envelope: testEnvelope("Bob", "bob-pc"), From: bob},
		{Envelope: testEnvelope("Carol", "carol-pc"), From: carol},
		{Envelope: testEnvelope("Me", "my-pc"), From: selfAddr},
		{Envelope: foreign, From: netip.MustParseAddrPort("192.168.1.40:54321")},
	}

	var want []PeerEntry
	count := 0
	permute(len(sightings), func(order []int) {
		r := NewRegistry([]netip.AddrPort{selfAddr}, nil)
		for _, i := range order {
			r.admit(sightings[i])
		}

		got := r.List()
		if want == nil {
			want = got
		}
		count++

		if len(got) != len(want) {
			t.Fatalf("order %v: %d peers, want %d", order, len(got), len(want))
		}
		for i := range got {
			if got[i].Address != want[i].Address || got[i].Label != want[i].Label {
				t.Errorf("order %v: peer %d = %v, want %v", order, i, got[i], want[i])
			}
		}
	})

	if count != 120 {
		t.Errorf("checked %d permutations, want 120", count)
	}
	if len(want) != 2 {
		t.Errorf("final table has %d peers, want 2", len(want))
	}
}

// permute calls fn with every permutation of 0..n-1
func permute(n int, fn func([]int)) {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	var rec func(k int)
	rec = func(k int) {
		if k == n {
			fn(order)
			return
		}
		for i := k; i < n; i++ {
			order[k], order[i] = order[i], order[k]
			rec(k + 1)
			order[k], order[i] = order[i], order[k]
		}
	}
	rec(0)
}

func TestRegistry_ListSorted(t *testing.T) {
	r := NewRegistry(nil, nil)
	addrs := []string{"10.0.0.3:1", "10.0.0.1:2", "10.0.0.1:1", "10.0.0.2:9"}
	for _, a := range addrs {
		r.Admit(testEnvelope("X", "x"), netip.MustParseAddrPort(a))
	}

	want := []string{"10.0.0.1:1", "10.0.0.1:2", "10.0.0.2:9", "10.0.0.3:1"}
	got := r.List()
	if len(got) != len(want) {
		t.Fatalf("List() returned %d peers, want %d", len(got), len(want))
	}
	for i, entry := range got {
		if entry.Address.String() != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, entry.Address, want[i])
		}
	}
}

func TestRegistry_GetRemove(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(nil, sink)
	addr := netip.MustParseAddrPort("10.0.0.5:54321")
	missing := netip.MustParseAddrPort("10.0.0.6:54321")

	r.Admit(testEnvelope("Bob", "bob-pc"), addr)

	if _, err := r.Get(missing); !errors.Is(err, ErrPeerNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrPeerNotFound", err)
	}
	if _, err := r.Remove(missing); !errors.Is(err, ErrPeerNotFound) {
		t.Errorf("Remove(missing) error = %v, want ErrPeerNotFound", err)
	}

	removed, err := r.Remove(addr)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if removed.Address != addr {
		t.Errorf("Remove() returned %v, want %v", removed.Address, addr)
	}
	if r.Len() != 0 {
		t.Errorf("Len() after Remove = %d, want 0", r.Len())
	}
	if sink.count() != 2 {
		t.Errorf("sink notified %d times, want 2 (admit + remove)", sink.count())
	}
	if last := sink.last(); len(last) != 0 {
		t.Errorf("last snapshot = %v, want empty", last)
	}

	// A removed peer can be rediscovered
	if got := r.Admit(testEnvelope("Bob", "bob-pc"), addr); got != Admitted {
		t.Errorf("Admit() after Remove = %v, want %v", got, Admitted)
	}
}

func TestRegistry_Expire(t *testing.T) {
	clock := newFakeClock()
	sink := &recordingSink{}
	r := NewRegistry(nil, sink, WithClock(clock.Now), WithTTL(10*time.Second))

	stale := netip.MustParseAddrPort("10.0.0.1:54321")
	fresh := netip.MustParseAddrPort("10.0.0.2:54321")

	r.Admit(testEnvelope("Old", "old-pc"), stale)
	r.Admit(testEnvelope("New", "new-pc"), fresh)

	clock.Advance(8 * time.Second)
	r.Admit(testEnvelope("New", "new-pc"), fresh) // refresh

	if expired := r.Expire(); len(expired) != 0 {
		t.Fatalf("Expire() before TTL removed %v", expired)
	}

	clock.Advance(5 * time.Second)
	expired := r.Expire()
	if len(expired) != 1 || expired[0].Address != stale {
		t.Fatalf("Expire() = %v, want only %v", expired, stale)
	}
	if _, err := r.Get(fresh); err != nil {
		t.Errorf("fresh peer was expired: %v", err)
	}
	if last := sink.last(); len(last) != 1 || last[0].Address != fresh {
		t.Errorf("last snapshot = %v, want only %v", last, fresh)
	}
}

func TestRegistry_ExpireWithoutTTL(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(nil, nil, WithClock(clock.Now))
	r.Admit(testEnvelope("Bob", "bob-pc"), netip.MustParseAddrPort("10.0.0.1:54321"))

	clock.Advance(24 * time.Hour)
	if expired := r.Expire(); expired != nil {
		t.Errorf("Expire() = %v, want nil without TTL", expired)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

// gatedSink records snapshots and, once armed, holds the next OnChange
// call until release is closed
type gatedSink struct {
	recordingSink
	armed   chan struct{}
	entered chan struct{}
	release chan struct{}
}

func newGatedSink() *gatedSink {
	return &gatedSink{
		armed:   make(chan struct{}, 1),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *gatedSink) OnChange(peers []PeerEntry) {
	select {
	case <-s.armed:
		close(s.entered)
		<-s.release
	default:
	}
	s.recordingSink.OnChange(peers)
}

func TestRegistry_NotificationsFollowTableOrder(t *testing.T) {
	clock := newFakeClock()
	sink := newGatedSink()
	r := NewRegistry(nil, sink, WithClock(clock.Now), WithTTL(10*time.Second))

	stale := netip.MustParseAddrPort("10.0.0.1:54321")
	fresh := netip.MustParseAddrPort("10.0.0.2:54321")

	r.Admit(testEnvelope("Old", "old-pc"), stale)
	clock.Advance(8 * time.Second)

	// The admission of fresh stalls inside the sink with {stale, fresh}
	sink.armed <- struct{}{}
	admitted := make(chan struct{})
	go func() {
		defer close(admitted)
		r.Admit(testEnvelope("New", "new-pc"), fresh)
	}()
	<-sink.entered

	clock.Advance(5 * time.Second)
	expired := make(chan []PeerEntry, 1)
	go func() {
		expired <- r.Expire()
	}()

	// Give Expire a chance to run ahead of the stalled notification
	time.Sleep(20 * time.Millisecond)
	close(sink.release)
	<-admitted

	select {
	case got := <-expired:
		if len(got) != 1 || got[0].Address != stale {
			t.Fatalf("Expire() = %v, want only %v", got, stale)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expire() did not return")
	}

	want := r.List()
	last := sink.last()
	if len(last) != len(want) {
		t.Fatalf("last snapshot = %v, want %v", last, want)
	}
	for i := range want {
		if last[i].Address != want[i].Address {
			t.Errorf("last snapshot[%d] = %v, want %v", i, last[i].Address, want[i].Address)
		}
	}
	if sink.count() != 3 {
		t.Errorf("sink notified %d times, want 3", sink.count())
	}
}

func TestRegistry_RunSweeper(t *testing.T) {
	clock := newFakeClock()
	sink := &recordingSink{}
	r := NewRegistry(nil, sink, WithClock(clock.Now), WithTTL(time.Second))

	addr := netip.MustParseAddrPort("10.0.0.1:54321")
	r.Admit(testEnvelope("Bob", "bob-pc"), addr)
	clock.Advance(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.RunSweeper(ctx, 5*time.Millisecond)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for r.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper never expired the silent peer")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunSweeper() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunSweeper() did not return after cancel")
	}

	if sink.count() != 2 {
		t.Errorf("sink notified %d times, want 2 (admit + expire)", sink.count())
	}
	if last := sink.last(); len(last) != 0 {
		t.Errorf("last snapshot = %v, want empty", last)
	}
}

func TestAdmission_String(t *testing.T) {
	tests := []struct {
		a    Admission
		want string
	}{
		{Admitted, "admitted"},
		{RejectForeign, "foreign"},
		{RejectSelf, "self"},
		{RejectDuplicate, "duplicate"},
		{Admission(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.a.String(); got != tt.want {
			t.Errorf("Admission(%d).String() = %q, want %q", int(tt.a), got, tt.want)
		}
	}
}

func TestMultiSink(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	var calls int
	sink := MultiSink{a, nil, b, SinkFunc(func([]PeerEntry) { calls++ })}

	sink.OnChange([]PeerEntry{{Label: "x"}})

	if a.count() != 1 || b.count() != 1 || calls != 1 {
		t.Errorf("fan-out counts = %d, %d, %d; want 1 each", a.count(), b.count(), calls)
	}
}
