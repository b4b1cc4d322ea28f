package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/witransfer/witransfer/internal/discovery"
	"github.com/witransfer/witransfer/internal/protocol"
)

// CurrentVersion is the only config schema version understood
const CurrentVersion = 1

// BroadcastAuto in discovery.broadcast expands to every interface's
// directed broadcast address
const BroadcastAuto = "auto"

// UI modes
const (
	UIModePlain = "plain"
	UIModeJSON  = "json"
	UIModeTUI   = "tui"
)

// Settings represents the entire user configuration file
type Settings struct {
	Version   int               `yaml:"version"`
	Discovery DiscoverySettings `yaml:"discovery"`
	Identity  IdentitySettings  `yaml:"identity,omitempty"`
	Feed      FeedSettings      `yaml:"feed,omitempty"`
	UI        UISettings        `yaml:"ui"`
	LogLevel  string            `yaml:"log_level,omitempty"` // debug, info, warn, error; empty is silent
}

// DiscoverySettings mirrors discovery.Config in file form
type DiscoverySettings struct {
	Port        int      `yaml:"port"`
	Bind        string   `yaml:"bind,omitempty"`      // Empty binds all interfaces
	Broadcast   []string `yaml:"broadcast,omitempty"` // Addresses or "auto"; empty is 255.255.255.255
	Interval    Duration `yaml:"interval"`
	ReadTimeout Duration `yaml:"read_timeout"`
	QueueSize   int      `yaml:"queue_size"`
	PeerTTL     Duration `yaml:"peer_ttl,omitempty"` // Zero keeps peers for the whole session
	ReuseAddr   bool     `yaml:"reuse_addr"`
	MDNS        bool     `yaml:"mdns"`
}

// IdentitySettings overrides parts of the local descriptor
type IdentitySettings struct {
	DisplayName string `yaml:"display_name,omitempty"`
}

// FeedSettings configures the optional HTTP/websocket peer feed
type FeedSettings struct {
	Listen string `yaml:"listen,omitempty"` // e.g. ":8080"; empty disables the feed
}

// UISettings selects how discovered peers are rendered
type UISettings struct {
	Mode string `yaml:"mode"`
}

// Duration is a time.Duration written as a Go duration string ("2s")
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"2s\": %w", value.Line, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// NewSettings creates Settings with default values
func NewSettings() *Settings {
	return &Settings{
		Version: CurrentVersion,
		Discovery: DiscoverySettings{
			Port:        protocol.DefaultPort,
			Interval:    Duration(discovery.DefaultInterval),
			ReadTimeout: Duration(discovery.DefaultReadTimeout),
			QueueSize:   discovery.DefaultQueueSize,
		},
		UI: UISettings{Mode: UIModePlain},
	}
}

// ValidUIModes lists the accepted ui.mode values
var ValidUIModes = []string{UIModePlain, UIModeJSON, UIModeTUI}
