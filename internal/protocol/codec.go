package protocol

import (
	"encoding/json"
	"fmt"
	"net/netip"
)

// wireMessage is the JSON layout of an announcement on the wire.
// Pointer fields distinguish a missing field from a zero value.
type wireMessage struct {
	Identifier *string     `json:"identifier"`
	DeviceInfo *wireDevice `json:"device_info"`
	IPAddr     *string     `json:"ip_addr"`
	MaxThreads *int        `json:"max_threads"`
}

type wireDevice struct {
	RealName   *string `json:"real_name"`
	UserName   *string `json:"user_name"`
	DeviceName *string `json:"device_name"`
	Platform   *string `json:"platform"`
	Distro     *string `json:"distro"`
}

// Encode serializes an envelope into a datagram payload
func Encode(env Envelope) ([]byte, error) {
	if env.ProtocolTag == "" {
		return nil, &EncodeError{Reason: "empty protocol tag"}
	}
	if !env.SourceAddress.IsValid() {
		return nil, &EncodeError{Reason: "invalid source address"}
	}
	if env.ConcurrencyHint < 1 {
		return nil, &EncodeError{Reason: fmt.Sprintf("concurrency hint %d below 1", env.ConcurrencyHint)}
	}

	d := env.Descriptor
	ip := env.SourceAddress.String()
	msg := wireMessage{
		Identifier: &env.ProtocolTag,
		DeviceInfo: &wireDevice{
			RealName:   &d.DisplayName,
			UserName:   &d.UserName,
			DeviceName: &d.HostName,
			Platform:   &d.Platform,
			Distro:     &d.Distro,
		},
		IPAddr:     &ip,
		MaxThreads: &env.ConcurrencyHint,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, &EncodeError{Reason: "marshal failed", Err: err}
	}
	if len(data) > MaxDatagramSize {
		return nil, &EncodeError{Reason: fmt.Sprintf("payload %d bytes exceeds %d", len(data), MaxDatagramSize)}
	}

	return data, nil
}

// Decode parses a datagram payload into an envelope.
// Arbitrary input never panics; malformed input yields a *DecodeError.
func Decode(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "empty payload"}
	}

	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &DecodeError{Reason: "malformed payload", Length: len(data), Err: err}
	}

	if msg.Identifier == nil {
		return nil, missingField("identifier", len(data))
	}
	if msg.DeviceInfo == nil {
		return nil, missingField("device_info", len(data))
	}
	if msg.IPAddr == nil {
		return nil, missingField("ip_addr", len(data))
	}
	if msg.MaxThreads == nil {
		return nil, missingField("max_threads", len(data))
	}

	dev := msg.DeviceInfo
	fields := []struct {
		name  string
		value *string
	}{
		{"device_info.real_name", dev.RealName},
		{"device_info.user_name", dev.UserName},
		{"device_info.device_name", dev.DeviceName},
		{"device_info.platform", dev.Platform},
		{"device_info.distro", dev.Distro},
	}
	for _, f := range fields {
		if f.value == nil {
			return nil, missingField(f.name, len(data))
		}
	}

	addr, err := netip.ParseAddr(*msg.IPAddr)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid ip_addr", Length: len(data), Err: err}
	}

	return &Envelope{
		ProtocolTag: *msg.Identifier,
		Descriptor: DeviceDescriptor{
			DisplayName:     *dev.RealName,
			UserName:        *dev.UserName,
			HostName:        *dev.DeviceName,
			Platform:        *dev.Platform,
			Distro:          *dev.Distro,
			ConcurrencyHint: *msg.MaxThreads,
		},
		SourceAddress:   addr,
		ConcurrencyHint: *msg.MaxThreads,
	}, nil
}

func missingField(name string, length int) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf("missing field %q", name), Length: length}
}
