package discovery

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/witransfer/witransfer/internal/protocol"
)

const (
	// DefaultInterval is the announce cadence
	DefaultInterval = 2 * time.Second

	// DefaultReadTimeout is the listener's liveness ceiling per receive
	DefaultReadTimeout = 50 * time.Second

	// DefaultQueueSize bounds the listener to registry queue
	DefaultQueueSize = 64
)

// Config holds the discovery session configuration
type Config struct {
	// BindAddr is the local address; the zero value binds all interfaces
	BindAddr netip.Addr
	// Port is the local discovery port (0 picks an ephemeral port)
	Port int

	// Targets are the broadcast destinations; empty means 255.255.255.255
	Targets []netip.Addr
	// TargetPort is the destination port; 0 means the bound port
	TargetPort int

	Interval    time.Duration
	ReadTimeout time.Duration
	QueueSize   int

	// PeerTTL expires peers not seen for this long; 0 keeps them for the session
	PeerTTL time.Duration

	// ReuseAddr sets SO_REUSEADDR so several sessions can share the port
	ReuseAddr bool

	// MDNS additionally advertises and browses the session over mDNS
	MDNS bool
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() Config {
	return Config{
		BindAddr:    netip.IPv4Unspecified(),
		Port:        protocol.DefaultPort,
		Interval:    DefaultInterval,
		ReadTimeout: DefaultReadTimeout,
		QueueSize:   DefaultQueueSize,
	}
}

// Validate checks the configuration values
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.TargetPort < 0 || c.TargetPort > 65535 {
		return fmt.Errorf("target port %d out of range", c.TargetPort)
	}
	if c.BindAddr.IsValid() && !c.BindAddr.Is4() {
		return fmt.Errorf("bind address %s is not IPv4", c.BindAddr)
	}
	for _, t := range c.Targets {
		if !t.Is4() {
			return fmt.Errorf("broadcast target %s is not IPv4", t)
		}
	}
	if c.Interval <= 0 {
		return fmt.Errorf("announce interval must be positive, got %s", c.Interval)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive, got %s", c.ReadTimeout)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue size must be at least 1, got %d", c.QueueSize)
	}
	if c.PeerTTL < 0 {
		return fmt.Errorf("peer ttl must not be negative, got %s", c.PeerTTL)
	}
	if c.PeerTTL > 0 && c.PeerTTL <= c.Interval {
		return fmt.Errorf("peer ttl %s must exceed the announce interval %s", c.PeerTTL, c.Interval)
	}
	return nil
}

func (c *Config) bindAddrPort() netip.AddrPort {
	addr := c.BindAddr
	if !addr.IsValid() {
		addr = netip.IPv4Unspecified()
	}
	return netip.AddrPortFrom(addr, uint16(c.Port))
}

func (c *Config) targetAddrs(boundPort uint16) []netip.AddrPort {
	port := boundPort
	if c.TargetPort != 0 {
		port = uint16(c.TargetPort)
	}

	targets := c.Targets
	if len(targets) == 0 {
		targets = []netip.Addr{netip.AddrFrom4([4]byte{255, 255, 255, 255})}
	}

	result := make([]netip.AddrPort, 0, len(targets))
	for _, t := range targets {
		result = append(result, netip.AddrPortFrom(t, port))
	}
	return result
}
