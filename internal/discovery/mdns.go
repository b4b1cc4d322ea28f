package discovery

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/witransfer/witransfer/internal/logging"
	"github.com/witransfer/witransfer/internal/protocol"
)

const (
	// ServiceType is the mDNS service type WiTransfer instances register
	ServiceType = "_witransfer._udp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."
)

// TXT record keys, mirroring the JSON wire field names
const (
	txtIdentifier = "identifier"
	txtRealName   = "real_name"
	txtUserName   = "user_name"
	txtDeviceName = "device_name"
	txtPlatform   = "platform"
	txtDistro     = "distro"
	txtIPAddr     = "ip_addr"
	txtMaxThreads = "max_threads"
)

// Beacon advertises the local envelope over mDNS and turns browsed
// WiTransfer services into sightings. It complements UDP broadcast on
// networks that filter broadcast but pass multicast DNS.
type Beacon struct {
	Port     int
	Envelope protocol.Envelope
}

// Run registers the service and browses for peers until ctx is cancelled
func (b *Beacon) Run(ctx context.Context, deliver DeliverFunc) error {
	instance := b.instanceName()

	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, b.Port, TXTRecords(b.Envelope), nil)
	if err != nil {
		return &Error{Type: ErrTypeTransport, Component: "mdns", Op: "register", Err: err}
	}
	defer server.Shutdown()

	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return &Error{Type: ErrTypeTransport, Component: "mdns", Op: "resolver", Err: fmt.Errorf("failed to create mDNS resolver: %w", err)}
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			sighting, ok := parseServiceEntry(entry)
			if !ok {
				continue
			}
			if err := deliver(ctx, sighting); err != nil {
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return &Error{Type: ErrTypeTransport, Component: "mdns", Op: "browse", Err: fmt.Errorf("failed to browse for mDNS services: %w", err)}
	}

	logging.Info("mDNS beacon registered",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", b.Port),
	)

	<-ctx.Done()
	return nil
}

func (b *Beacon) instanceName() string {
	name := b.Envelope.Descriptor.HostName
	if name == "" {
		name = b.Envelope.SourceAddress.String()
	}
	return fmt.Sprintf("%s-%d", name, b.Port)
}

// TXTRecords encodes an envelope as mDNS TXT records
func TXTRecords(env protocol.Envelope) []string {
	d := env.Descriptor
	return []string{
		txtIdentifier + "=" + env.ProtocolTag,
		txtRealName + "=" + d.DisplayName,
		txtUserName + "=" + d.UserName,
		txtDeviceName + "=" + d.HostName,
		txtPlatform + "=" + d.Platform,
		txtDistro + "=" + d.Distro,
		txtIPAddr + "=" + env.SourceAddress.String(),
		txtMaxThreads + "=" + strconv.Itoa(env.ConcurrencyHint),
	}
}

// parseServiceEntry converts a zeroconf service entry to a Sighting.
// Returns false if the entry carries no identifier or no usable address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) (Sighting, bool) {
	if entry == nil || len(entry.AddrIPv4) == 0 || entry.Port <= 0 || entry.Port > 65535 {
		return Sighting{}, false
	}

	// TXT records are in "key=value" format
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	tag, ok := metadata[txtIdentifier]
	if !ok {
		return Sighting{}, false
	}

	ip, ok := netip.AddrFromSlice(entry.AddrIPv4[0].To4())
	if !ok {
		return Sighting{}, false
	}

	advertised, err := netip.ParseAddr(metadata[txtIPAddr])
	if err != nil {
		advertised = ip
	}

	threads, err := strconv.Atoi(metadata[txtMaxThreads])
	if err != nil || threads < 1 {
		threads = 1
	}

	hostName := metadata[txtDeviceName]
	if hostName == "" {
		hostName = strings.TrimSuffix(strings.TrimSuffix(entry.HostName, "."), ".local")
	}

	return Sighting{
		Envelope: protocol.Envelope{
			ProtocolTag: tag,
			Descriptor: protocol.DeviceDescriptor{
				DisplayName:     metadata[txtRealName],
				UserName:        metadata[txtUserName],
				HostName:        hostName,
				Platform:        metadata[txtPlatform],
				Distro:          metadata[txtDistro],
				ConcurrencyHint: threads,
			},
			SourceAddress:   advertised,
			ConcurrencyHint: threads,
		},
		From: netip.AddrPortFrom(ip, uint16(entry.Port)),
		Via:  ViaMDNS,
	}, true
}
