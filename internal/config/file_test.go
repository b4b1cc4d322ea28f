package config

import (
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/witransfer/witransfer/internal/discovery"
	"github.com/witransfer/witransfer/internal/protocol"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS == "linux" {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
	}

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if !strings.Contains(configDir, "witransfer") {
		t.Errorf("GetConfigDir() = %v, should contain 'witransfer'", configDir)
	}

	if runtime.GOOS == "linux" && configDir != filepath.Join("/tmp/xdg-test", "witransfer") {
		t.Errorf("GetConfigDir() = %v, want XDG_CONFIG_HOME based path", configDir)
	}
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}

	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestNewSettings(t *testing.T) {
	s := NewSettings()

	if s.Version != CurrentVersion {
		t.Errorf("Version = %v, want %v", s.Version, CurrentVersion)
	}
	if s.Discovery.Port != protocol.DefaultPort {
		t.Errorf("Discovery.Port = %v, want %v", s.Discovery.Port, protocol.DefaultPort)
	}
	if time.Duration(s.Discovery.Interval) != discovery.DefaultInterval {
		t.Errorf("Discovery.Interval = %v, want %v", time.Duration(s.Discovery.Interval), discovery.DefaultInterval)
	}
	if s.UI.Mode != UIModePlain {
		t.Errorf("UI.Mode = %q, want %q", s.UI.Mode, UIModePlain)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Discovery.Port != protocol.DefaultPort {
		t.Errorf("Load() of missing file did not return defaults: %+v", s)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `version: 1
discovery:
  port: 6000
  peer_ttl: 30s
  broadcast: [192.168.1.255]
identity:
  display_name: Bob
ui:
  mode: json
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if s.Discovery.Port != 6000 {
		t.Errorf("Discovery.Port = %d, want 6000", s.Discovery.Port)
	}
	if time.Duration(s.Discovery.PeerTTL) != 30*time.Second {
		t.Errorf("Discovery.PeerTTL = %v, want 30s", time.Duration(s.Discovery.PeerTTL))
	}
	if time.Duration(s.Discovery.Interval) != discovery.DefaultInterval {
		t.Errorf("Discovery.Interval = %v, want default", time.Duration(s.Discovery.Interval))
	}
	if s.Discovery.QueueSize != discovery.DefaultQueueSize {
		t.Errorf("Discovery.QueueSize = %d, want default", s.Discovery.QueueSize)
	}
	if s.Identity.DisplayName != "Bob" {
		t.Errorf("Identity.DisplayName = %q, want Bob", s.Identity.DisplayName)
	}
	if s.UI.Mode != UIModeJSON {
		t.Errorf("UI.Mode = %q, want json", s.UI.Mode)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad version", "version: 2\n", "unsupported config version"},
		{"missing version", "discovery:\n  port: 1\n", "unsupported config version"},
		{"bad yaml", "version: [\n", "failed to parse"},
		{"bad duration", "version: 1\ndiscovery:\n  interval: soon\n", "failed to parse"},
		{"numeric duration", "version: 1\ndiscovery:\n  interval: [1]\n", "failed to parse"},
		{"invalid value", "version: 1\ndiscovery:\n  port: 99999\n", "out of range"},
		{"bad ui mode", "version: 1\nui:\n  mode: fancy\n", "ui.mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}

			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	s := NewSettings()
	s.Discovery.Port = 7000
	s.Discovery.Broadcast = []string{BroadcastAuto, "10.0.0.255"}
	s.Discovery.PeerTTL = Duration(45 * time.Second)
	s.Discovery.MDNS = true
	s.Feed.Listen = "127.0.0.1:8080"
	s.LogLevel = "debug"

	if err := s.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind after Save()")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# WiTransfer Configuration File") {
		t.Error("saved file is missing the header comment")
	}
	if !strings.Contains(string(data), "peer_ttl: 45s") {
		t.Errorf("durations not written as strings:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Discovery.Port != 7000 || !loaded.Discovery.MDNS || loaded.Feed.Listen != "127.0.0.1:8080" {
		t.Errorf("round trip lost values: %+v", loaded)
	}
	if time.Duration(loaded.Discovery.PeerTTL) != 45*time.Second {
		t.Errorf("PeerTTL = %v, want 45s", time.Duration(loaded.Discovery.PeerTTL))
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	got, err := CreateDefaultConfig(path)
	if err != nil {
		t.Fatalf("CreateDefaultConfig() error = %v", err)
	}
	if got != path {
		t.Errorf("CreateDefaultConfig() path = %q, want %q", got, path)
	}

	if _, err := CreateDefaultConfig(path); !errors.Is(err, ErrConfigExists) {
		t.Errorf("second CreateDefaultConfig() error = %v, want ErrConfigExists", err)
	}
}

func TestDiscoveryConfig(t *testing.T) {
	orig := subnetBroadcasts
	defer func() { subnetBroadcasts = orig }()
	subnetBroadcasts = func() ([]netip.Addr, error) {
		return []netip.Addr{netip.MustParseAddr("192.168.1.255"), netip.MustParseAddr("10.0.0.255")}, nil
	}

	s := NewSettings()
	s.Discovery.Bind = "192.168.1.10"
	s.Discovery.Broadcast = []string{"10.0.0.255", "auto", "172.16.255.255"}
	s.Discovery.PeerTTL = Duration(10 * time.Second)
	s.Discovery.ReuseAddr = true

	cfg, err := s.DiscoveryConfig()
	if err != nil {
		t.Fatalf("DiscoveryConfig() error = %v", err)
	}

	if cfg.BindAddr != netip.MustParseAddr("192.168.1.10") {
		t.Errorf("BindAddr = %v, want 192.168.1.10", cfg.BindAddr)
	}
	want := []string{"10.0.0.255", "192.168.1.255", "172.16.255.255"}
	if len(cfg.Targets) != len(want) {
		t.Fatalf("Targets = %v, want %v", cfg.Targets, want)
	}
	for i := range want {
		if cfg.Targets[i].String() != want[i] {
			t.Errorf("Targets[%d] = %v, want %v", i, cfg.Targets[i], want[i])
		}
	}
	if cfg.PeerTTL != 10*time.Second || !cfg.ReuseAddr {
		t.Errorf("DiscoveryConfig() = %+v, lost ttl or reuse_addr", cfg)
	}
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Settings)
		wantErr string
	}{
		{name: "defaults", modify: func(*Settings) {}},
		{name: "auto broadcast", modify: func(s *Settings) { s.Discovery.Broadcast = []string{"AUTO"} }},
		{name: "bad bind", modify: func(s *Settings) { s.Discovery.Bind = "host" }, wantErr: "discovery.bind"},
		{name: "ipv6 bind", modify: func(s *Settings) { s.Discovery.Bind = "::1" }, wantErr: "not IPv4"},
		{name: "bad broadcast", modify: func(s *Settings) { s.Discovery.Broadcast = []string{"x"} }, wantErr: "discovery.broadcast"},
		{name: "zero interval", modify: func(s *Settings) { s.Discovery.Interval = 0 }, wantErr: "interval"},
		{name: "zero queue", modify: func(s *Settings) { s.Discovery.QueueSize = 0 }, wantErr: "queue_size"},
		{name: "ttl too short", modify: func(s *Settings) { s.Discovery.PeerTTL = s.Discovery.Interval }, wantErr: "peer_ttl"},
		{name: "bad log level", modify: func(s *Settings) { s.LogLevel = "loud" }, wantErr: "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSettings()
			tt.modify(s)

			err := s.Validate()
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
