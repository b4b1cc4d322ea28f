package protocol

import (
	"fmt"
	"net/netip"
)

// Protocol constants
const (
	// Identifier is the protocol tag carried by every WiTransfer announcement.
	// Broadcast traffic with any other tag is foreign and must be ignored.
	Identifier = "WiTransfer"

	// DefaultPort is the UDP discovery port
	DefaultPort = 54321

	// MaxDatagramSize bounds both the encoded envelope and the receive buffer
	MaxDatagramSize = 4096
)

// DeviceDescriptor is the identity and platform metadata of one host.
// It is built once per session and never modified afterwards.
type DeviceDescriptor struct {
	DisplayName string `json:"real_name"`
	UserName    string `json:"user_name"`
	HostName    string `json:"device_name"`
	Platform    string `json:"platform"`
	Distro      string `json:"distro"`

	// ConcurrencyHint travels as the envelope's max_threads field
	ConcurrencyHint int `json:"-"`
}

// Label returns the display label used for peer entries, "<name> - <host>".
// Falls back to the user name when no display name is known.
func (d DeviceDescriptor) Label() string {
	name := d.DisplayName
	if name == "" {
		name = d.UserName
	}
	return fmt.Sprintf("%s - %s", name, d.HostName)
}

// Envelope is one discovery announcement
type Envelope struct {
	ProtocolTag     string
	Descriptor      DeviceDescriptor
	SourceAddress   netip.Addr
	ConcurrencyHint int
}

// NewEnvelope builds the announcement for the local host
func NewEnvelope(desc DeviceDescriptor, addr netip.Addr) Envelope {
	return Envelope{
		ProtocolTag:     Identifier,
		Descriptor:      desc,
		SourceAddress:   addr,
		ConcurrencyHint: desc.ConcurrencyHint,
	}
}

// IsForeign reports whether the envelope belongs to another protocol
func (e *Envelope) IsForeign() bool {
	return e.ProtocolTag != Identifier
}

// String returns a debug representation of the envelope
func (e *Envelope) String() string {
	return fmt.Sprintf("Envelope{tag=%s, addr=%s, label=%q, threads=%d}",
		e.ProtocolTag, e.SourceAddress, e.Descriptor.Label(), e.ConcurrencyHint)
}
