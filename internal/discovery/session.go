package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/witransfer/witransfer/internal/descriptor"
	"github.com/witransfer/witransfer/internal/logging"
	"github.com/witransfer/witransfer/internal/protocol"
)

// descriptorTimeout bounds the descriptor lookup during Start
const descriptorTimeout = 5 * time.Second

// State is the lifecycle state of a Session
type State int

const (
	StateInitializing State = iota
	StateRunning
	StateStopped
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a point-in-time view of a session
type Status struct {
	State          State
	LocalAddr      netip.AddrPort
	ListenerAlive  bool
	AnnouncerAlive bool
	ListenerErr    error
	AnnouncerErr   error
	Sent           uint64
	Received       uint64
	Dropped        uint64
	Peers          int
}

// Session owns the discovery socket and coordinates the announcer,
// listener and registry goroutines.
type Session struct {
	config   Config
	provider descriptor.Provider
	sink     DisplaySink
	clock    func() time.Time

	mu             sync.Mutex
	state          State
	conn           *net.UDPConn
	localAddr      netip.AddrPort
	envelope       protocol.Envelope
	registry       *Registry
	announcer      *Announcer
	listener       *Listener
	queue          chan Sighting
	consumerDone   chan struct{}
	cancel         context.CancelFunc
	listenerAlive  bool
	announcerAlive bool
	listenerErr    error
	announcerErr   error

	done     chan struct{}
	doneOnce sync.Once
}

// NewSession validates cfg and creates a session in the Initializing state.
// sink may be nil.
func NewSession(cfg Config, provider descriptor.Provider, sink DisplaySink) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, newInitError("validate", "", err)
	}
	if provider == nil {
		return nil, newInitError("validate", "", errors.New("descriptor provider is required"))
	}

	s := &Session{
		config:   cfg,
		provider: provider,
		sink:     sink,
		clock:    time.Now,
		state:    StateInitializing,
		done:     make(chan struct{}),
	}
	return s, nil
}

// Start acquires the descriptor, binds the socket and launches the
// components. Any failure is an ErrTypeInit error and leaves the session
// Stopped without ever reaching Running. Cancelling ctx stops the session.
// The descriptor lookup and bind run without the session lock. Stop
// aborts them.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateInitializing || s.cancel != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	descCtx, cancelDesc := context.WithTimeout(runCtx, descriptorTimeout)
	desc, err := s.provider.Current(descCtx)
	cancelDesc()
	if err != nil {
		return s.fail(newInitError("descriptor", "", err))
	}

	bind := s.config.bindAddrPort()
	conn, err := listenUDP(runCtx, bind, s.config.ReuseAddr)
	if err != nil {
		return s.fail(newInitError("bind", bind.String(), err))
	}

	local := conn.LocalAddr().(*net.UDPAddr).AddrPort()
	local = netip.AddrPortFrom(local.Addr().Unmap(), local.Port())

	advertised := descriptor.LocalIP(bind.Addr())
	env := protocol.NewEnvelope(desc, advertised)
	if _, err := protocol.Encode(env); err != nil {
		_ = conn.Close()
		return s.fail(newInitError("encode", "", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInitializing {
		_ = conn.Close()
		cancel()
		return newInitError("start", bind.String(), ErrStopped)
	}

	s.conn = conn
	s.localAddr = local
	s.envelope = env
	s.registry = NewRegistry(selfAddrs(bind.Addr(), advertised, local.Port()), s.sink,
		WithTTL(s.config.PeerTTL), WithClock(s.clock))
	s.queue = make(chan Sighting, s.config.QueueSize)
	s.consumerDone = make(chan struct{})
	s.announcer = &Announcer{
		Conn:     conn,
		Targets:  s.config.targetAddrs(local.Port()),
		Interval: s.config.Interval,
	}
	s.listener = &Listener{Conn: conn, ReadTimeout: s.config.ReadTimeout}
	s.listenerAlive = true
	s.announcerAlive = true
	s.state = StateRunning

	logging.Info("Discovery session running",
		zap.Stringer("local_addr", local),
		zap.Stringer("advertised", advertised),
		zap.String("label", desc.Label()),
	)

	s.launch(runCtx)
	return nil
}

func (s *Session) launch(ctx context.Context) {
	var g errgroup.Group

	g.Go(func() error {
		defer close(s.consumerDone)
		err := s.registry.Run(ctx, s.queue)
		logging.LogComponentExit("registry", err)
		return err
	})

	g.Go(func() error {
		err := s.listener.Run(ctx, s.deliver)
		s.componentExit("listener", err)
		return err
	})

	g.Go(func() error {
		err := s.announcer.Run(ctx, s.envelope)
		s.componentExit("announcer", err)
		return err
	})

	if s.config.PeerTTL > 0 {
		g.Go(func() error {
			return s.registry.RunSweeper(ctx, s.config.PeerTTL/2)
		})
	}

	if s.config.MDNS {
		beacon := &Beacon{Port: int(s.localAddr.Port()), Envelope: s.envelope}
		g.Go(func() error {
			// Beacon failures never stop broadcast discovery
			if err := beacon.Run(ctx, s.deliver); err != nil {
				logging.Warn("mDNS beacon stopped", zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		// Unblocks the listener's pending receive
		return s.conn.Close()
	})

	go func() {
		_ = g.Wait()
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		logging.Info("Discovery session stopped", zap.Int("peers", s.registry.Len()))
		s.doneOnce.Do(func() { close(s.done) })
	}()
}

// deliver enqueues a sighting for the registry consumer, blocking while
// the queue is full
func (s *Session) deliver(ctx context.Context, sighting Sighting) error {
	select {
	case s.queue <- sighting:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.consumerDone:
		return errConsumerGone
	}
}

// componentExit records a finished announcer or listener. Once both are
// gone the session has nothing left to do and is cancelled.
func (s *Session) componentExit(name string, err error) {
	logging.LogComponentExit(name, err)

	s.mu.Lock()
	switch name {
	case "listener":
		s.listenerAlive = false
		s.listenerErr = err
	case "announcer":
		s.announcerAlive = false
		s.announcerErr = err
	}
	bothGone := !s.listenerAlive && !s.announcerAlive
	degraded := err != nil && !bothGone
	s.mu.Unlock()

	if degraded {
		logging.Warn("Discovery degraded", zap.String("stopped", name))
	}
	if bothGone {
		s.cancel()
	}
}

// fail moves a session that never reached Running to Stopped
func (s *Session) fail(err error) error {
	s.mu.Lock()
	cancel := s.cancel
	s.state = StateStopped
	s.doneOnce.Do(func() { close(s.done) })
	s.mu.Unlock()

	cancel()
	logging.Error("Discovery session failed to start", zap.Error(err))
	return err
}

// Stop cancels the session and waits for every component to exit.
// It is safe to call more than once and before Start.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	if s.state == StateInitializing {
		s.state = StateStopped
		s.doneOnce.Do(func() { close(s.done) })
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-s.done
}

// Wait blocks until the session is stopped and returns the component
// errors, if any
func (s *Session) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.listenerErr, s.announcerErr)
}

// Done is closed once the session reaches StateStopped
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Registry returns the peer registry; nil before a successful Start
func (s *Session) Registry() *Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry
}

// LocalAddr returns the bound socket address
func (s *Session) LocalAddr() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localAddr
}

// Envelope returns the announcement this session broadcasts
func (s *Session) Envelope() protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.envelope
}

// Status returns a snapshot of the session state and counters
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:          s.state,
		LocalAddr:      s.localAddr,
		ListenerAlive:  s.listenerAlive,
		AnnouncerAlive: s.announcerAlive,
		ListenerErr:    s.listenerErr,
		AnnouncerErr:   s.announcerErr,
	}
	if s.announcer != nil {
		st.Sent = s.announcer.Sent()
	}
	if s.listener != nil {
		st.Received = s.listener.Received()
		st.Dropped = s.listener.Dropped()
	}
	if s.registry != nil {
		st.Peers = s.registry.Len()
	}
	return st
}

// selfAddrs lists the addresses our own datagrams can arrive from
func selfAddrs(bind, advertised netip.Addr, port uint16) []netip.AddrPort {
	if bind.IsValid() && !bind.IsUnspecified() {
		return []netip.AddrPort{netip.AddrPortFrom(bind, port)}
	}

	result := []netip.AddrPort{netip.AddrPortFrom(advertised, port)}
	addrs, err := descriptor.InterfaceAddrs()
	if err != nil {
		logging.Warn("Cannot enumerate interfaces for self-suppression", zap.Error(err))
		return result
	}
	for _, addr := range addrs {
		result = append(result, netip.AddrPortFrom(addr, port))
	}
	return result
}
