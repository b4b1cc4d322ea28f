package discovery

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "ephemeral port", modify: func(c *Config) { c.Port = 0 }},
		{name: "ttl above interval", modify: func(c *Config) { c.PeerTTL = 30 * time.Second }},
		{name: "port too large", modify: func(c *Config) { c.Port = 70000 }, wantErr: "port 70000 out of range"},
		{name: "negative target port", modify: func(c *Config) { c.TargetPort = -1 }, wantErr: "target port"},
		{name: "ipv6 bind", modify: func(c *Config) { c.BindAddr = netip.MustParseAddr("::1") }, wantErr: "not IPv4"},
		{name: "ipv6 target", modify: func(c *Config) { c.Targets = []netip.Addr{netip.MustParseAddr("ff02::1")} }, wantErr: "not IPv4"},
		{name: "zero interval", modify: func(c *Config) { c.Interval = 0 }, wantErr: "interval"},
		{name: "zero read timeout", modify: func(c *Config) { c.ReadTimeout = 0 }, wantErr: "read timeout"},
		{name: "zero queue", modify: func(c *Config) { c.QueueSize = 0 }, wantErr: "queue size"},
		{name: "negative ttl", modify: func(c *Config) { c.PeerTTL = -time.Second }, wantErr: "negative"},
		{name: "ttl not above interval", modify: func(c *Config) { c.PeerTTL = c.Interval }, wantErr: "must exceed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Addresses(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.bindAddrPort().String(); got != "0.0.0.0:54321" {
		t.Errorf("bindAddrPort() = %s, want 0.0.0.0:54321", got)
	}

	targets := cfg.targetAddrs(40000)
	if len(targets) != 1 || targets[0].String() != "255.255.255.255:40000" {
		t.Errorf("targetAddrs(default) = %v, want [255.255.255.255:40000]", targets)
	}

	cfg.Targets = []netip.Addr{netip.MustParseAddr("192.168.1.255"), netip.MustParseAddr("10.0.0.255")}
	cfg.TargetPort = 5000
	targets = cfg.targetAddrs(40000)
	want := []string{"192.168.1.255:5000", "10.0.0.255:5000"}
	if len(targets) != len(want) {
		t.Fatalf("targetAddrs() = %v, want %v", targets, want)
	}
	for i := range want {
		if targets[i].String() != want[i] {
			t.Errorf("targetAddrs()[%d] = %s, want %s", i, targets[i], want[i])
		}
	}
}

func TestError_Format(t *testing.T) {
	err := &Error{
		Type:      ErrTypeTransport,
		Component: "announcer",
		Op:        "send",
		Addr:      "255.255.255.255:54321",
		Err:       errSendFailed,
	}

	want := "Transport Error: announcer send 255.255.255.255:54321: network is unreachable"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, errSendFailed) {
		t.Error("errors.Is() did not find the wrapped error")
	}
}

func TestErrorTypeHelpers(t *testing.T) {
	wrapped := fmt.Errorf("starting: %w", newInitError("bind", "0.0.0.0:54321", syscall.EADDRINUSE))

	tests := []struct {
		name      string
		err       error
		init      bool
		transport bool
		decode    bool
		delivery  bool
	}{
		{name: "wrapped init", err: wrapped, init: true},
		{name: "transport", err: &Error{Type: ErrTypeTransport}, transport: true},
		{name: "decode", err: &Error{Type: ErrTypeDecode}, decode: true},
		{name: "delivery", err: &Error{Type: ErrTypeDelivery}, delivery: true},
		{name: "plain", err: errors.New("x")},
		{name: "nil", err: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInitError(tt.err); got != tt.init {
				t.Errorf("IsInitError() = %v, want %v", got, tt.init)
			}
			if got := IsTransportError(tt.err); got != tt.transport {
				t.Errorf("IsTransportError() = %v, want %v", got, tt.transport)
			}
			if got := IsDecodeError(tt.err); got != tt.decode {
				t.Errorf("IsDecodeError() = %v, want %v", got, tt.decode)
			}
			if got := IsDeliveryError(tt.err); got != tt.delivery {
				t.Errorf("IsDeliveryError() = %v, want %v", got, tt.delivery)
			}
		})
	}
}

func TestGetTroubleshootingHint(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"address in use", newInitError("bind", "", syscall.EADDRINUSE), "already in use"},
		{"permission", newInitError("bind", "", syscall.EACCES), "Permission denied"},
		{"no interface", newInitError("bind", "", syscall.EADDRNOTAVAIL), "network interface"},
		{"other init", newInitError("descriptor", "", errors.New("x")), "could not start"},
		{"transport", &Error{Type: ErrTypeTransport, Err: errors.New("x")}, "network became unusable"},
		{"unknown", errors.New("x"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hint := GetTroubleshootingHint(tt.err)
			if tt.contains == "" {
				if hint != "" {
					t.Errorf("GetTroubleshootingHint() = %q, want empty", hint)
				}
				return
			}
			if !strings.Contains(hint, tt.contains) {
				t.Errorf("GetTroubleshootingHint() = %q, want containing %q", hint, tt.contains)
			}
		})
	}
}
