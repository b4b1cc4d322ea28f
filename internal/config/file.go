package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/witransfer/witransfer/internal/descriptor"
	"github.com/witransfer/witransfer/internal/discovery"
	"github.com/witransfer/witransfer/internal/logging"
)

const (
	appName    = "witransfer"
	configFile = "config.yaml"
)

var (
	// Mutex for thread-safe file operations
	fileMutex sync.Mutex

	// ErrConfigExists is returned by CreateDefaultConfig when a file is present
	ErrConfigExists = errors.New("config file already exists")

	// subnetBroadcasts resolves "auto" broadcast entries
	subnetBroadcasts = descriptor.SubnetBroadcasts
)

// GetConfigDir returns the OS-appropriate configuration directory for the application.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/witransfer or $HOME/.config/witransfer
//   - macOS: $HOME/.config/witransfer
//   - Windows: %LOCALAPPDATA%\witransfer
func GetConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			// Fallback to USERPROFILE\AppData\Local if LOCALAPPDATA not set
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", appName)
		} else {
			baseDir = filepath.Join(localAppData, appName)
		}

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", appName)

	default:
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, appName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", appName)
		}
	}

	return baseDir, nil
}

// GetConfigPath returns the full path to the default configuration file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

func resolvePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return GetConfigPath()
}

// Load reads the settings at path, or the default path when empty.
// A missing file yields the defaults. Values present in the file override
// the defaults; absent ones keep them.
func Load(path string) (*Settings, error) {
	configPath, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	settings := NewSettings()

	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		logging.Debug("No config file, using defaults")
		return settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// The version must come from the file itself
	settings.Version = 0
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if settings.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", settings.Version, CurrentVersion)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return settings, nil
}

// Save writes the settings to path, or the default path when empty.
// Performs an atomic write to prevent corruption on crash.
func (s *Settings) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	configPath, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	// Create directory with user-only permissions (0700)
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := s.Marshal()
	if err != nil {
		return err
	}

	header := []byte(`# WiTransfer Configuration File
# Discovery defaults; command-line flags override these values.
#
# Location: ` + configPath + `

`)
	data = append(header, data...)

	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		// Clean up temp file on error
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	logging.Debug("Config saved")
	return nil
}

// Marshal returns the YAML form of the settings
func (s *Settings) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// CreateDefaultConfig writes the default settings to path unless a file
// already exists there
func CreateDefaultConfig(path string) (string, error) {
	configPath, err := resolvePath(path)
	if err != nil {
		return "", fmt.Errorf("failed to get config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, ErrConfigExists
	}

	return configPath, NewSettings().Save(configPath)
}

// Validate checks every value that DiscoveryConfig and the CLI rely on
func (s *Settings) Validate() error {
	d := s.Discovery

	if d.Port < 0 || d.Port > 65535 {
		return fmt.Errorf("discovery.port %d out of range", d.Port)
	}
	if d.Bind != "" {
		if _, err := parseIPv4(d.Bind); err != nil {
			return fmt.Errorf("discovery.bind: %w", err)
		}
	}
	for _, entry := range d.Broadcast {
		if strings.EqualFold(entry, BroadcastAuto) {
			continue
		}
		if _, err := parseIPv4(entry); err != nil {
			return fmt.Errorf("discovery.broadcast: %w", err)
		}
	}
	if d.Interval <= 0 {
		return fmt.Errorf("discovery.interval must be positive")
	}
	if d.ReadTimeout <= 0 {
		return fmt.Errorf("discovery.read_timeout must be positive")
	}
	if d.QueueSize < 1 {
		return fmt.Errorf("discovery.queue_size must be at least 1")
	}
	if d.PeerTTL < 0 {
		return fmt.Errorf("discovery.peer_ttl must not be negative")
	}
	if d.PeerTTL > 0 && d.PeerTTL <= d.Interval {
		return fmt.Errorf("discovery.peer_ttl %s must exceed discovery.interval %s",
			time.Duration(d.PeerTTL), time.Duration(d.Interval))
	}

	if s.UI.Mode != "" && !slices.Contains(ValidUIModes, s.UI.Mode) {
		return fmt.Errorf("ui.mode %q must be one of %s", s.UI.Mode, strings.Join(ValidUIModes, ", "))
	}
	if s.LogLevel != "" {
		if _, err := logging.ParseLevel(s.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	return nil
}

// DiscoveryConfig converts the discovery section into a session config
func (s *Settings) DiscoveryConfig() (discovery.Config, error) {
	d := s.Discovery

	cfg := discovery.DefaultConfig()
	cfg.Port = d.Port
	cfg.Interval = time.Duration(d.Interval)
	cfg.ReadTimeout = time.Duration(d.ReadTimeout)
	cfg.QueueSize = d.QueueSize
	cfg.PeerTTL = time.Duration(d.PeerTTL)
	cfg.ReuseAddr = d.ReuseAddr
	cfg.MDNS = d.MDNS

	if d.Bind != "" {
		addr, err := parseIPv4(d.Bind)
		if err != nil {
			return discovery.Config{}, fmt.Errorf("discovery.bind: %w", err)
		}
		cfg.BindAddr = addr
	}

	targets, err := ParseBroadcast(d.Broadcast)
	if err != nil {
		return discovery.Config{}, err
	}
	cfg.Targets = targets

	if err := cfg.Validate(); err != nil {
		return discovery.Config{}, err
	}
	return cfg, nil
}

// ParseBroadcast resolves broadcast entries into addresses. "auto" expands
// to the directed broadcast address of every interface. Duplicates are
// removed and order is preserved.
func ParseBroadcast(entries []string) ([]netip.Addr, error) {
	var result []netip.Addr
	add := func(addr netip.Addr) {
		if !slices.Contains(result, addr) {
			result = append(result, addr)
		}
	}

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if strings.EqualFold(entry, BroadcastAuto) {
			addrs, err := subnetBroadcasts()
			if err != nil {
				return nil, fmt.Errorf("failed to enumerate interfaces for broadcast auto: %w", err)
			}
			if len(addrs) == 0 {
				logging.Warn("No broadcast-capable interfaces found for broadcast auto")
			}
			for _, addr := range addrs {
				add(addr)
			}
			continue
		}

		addr, err := parseIPv4(entry)
		if err != nil {
			return nil, fmt.Errorf("discovery.broadcast: %w", err)
		}
		add(addr)
	}
	return result, nil
}

func parseIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid address %q", s)
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("address %q is not IPv4", s)
	}
	return addr, nil
}
