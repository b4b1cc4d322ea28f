package discovery

import (
	"context"
	"fmt"
	"net/netip"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/witransfer/witransfer/internal/logging"
	"github.com/witransfer/witransfer/internal/protocol"
)

// PacketSender is the sending half of a UDP socket
type PacketSender interface {
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
}

// Announcer broadcasts the local envelope on a fixed cadence
type Announcer struct {
	Conn     PacketSender
	Targets  []netip.AddrPort
	Interval time.Duration

	sent atomic.Uint64
}

// Sent returns the number of datagrams sent so far
func (a *Announcer) Sent() uint64 {
	return a.sent.Load()
}

// Run sends env to every target immediately and then once per interval
// until ctx is cancelled. A send failure ends the loop with a transport
// error; cancellation returns nil.
func (a *Announcer) Run(ctx context.Context, env protocol.Envelope) error {
	payload, err := protocol.Encode(env)
	if err != nil {
		return &Error{Type: ErrTypeTransport, Component: "announcer", Op: "encode", Err: err}
	}

	interval := a.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	logging.Info("Announcing presence",
		zap.Int("targets", len(a.Targets)),
		zap.Duration("interval", interval),
		zap.Int("payload_bytes", len(payload)),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := a.announce(ctx, payload); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *Announcer) announce(ctx context.Context, payload []byte) error {
	for _, target := range a.Targets {
		n, err := a.Conn.WriteToUDPAddrPort(payload, target)
		if err != nil {
			if ctx.Err() != nil {
				// Socket closed by shutdown
				return nil
			}
			return &Error{
				Type:      ErrTypeTransport,
				Component: "announcer",
				Op:        "send",
				Addr:      target.String(),
				Err:       err,
			}
		}
		if n != len(payload) {
			return &Error{
				Type:      ErrTypeTransport,
				Component: "announcer",
				Op:        "send",
				Addr:      target.String(),
				Err:       fmt.Errorf("short write: %d of %d bytes", n, len(payload)),
			}
		}
		a.sent.Add(1)
		logging.LogDatagram("sent", target.String(), payload)
	}
	return nil
}
