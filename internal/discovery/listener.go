package discovery

import (
	"context"
	"net/netip"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/witransfer/witransfer/internal/logging"
	"github.com/witransfer/witransfer/internal/protocol"
)

// PacketReceiver is the receiving half of a UDP socket
type PacketReceiver interface {
	ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error)
	SetReadDeadline(t time.Time) error
}

// DeliverFunc hands a sighting to the registry. It may block for
// backpressure and returns an error once delivery is impossible.
type DeliverFunc func(ctx context.Context, s Sighting) error

// Listener drains the shared socket and forwards decodable envelopes
type Listener struct {
	Conn        PacketReceiver
	ReadTimeout time.Duration

	received atomic.Uint64
	dropped  atomic.Uint64
}

// Received returns the number of datagrams read
func (l *Listener) Received() uint64 {
	return l.received.Load()
}

// Dropped returns the number of datagrams discarded as malformed
func (l *Listener) Dropped() uint64 {
	return l.dropped.Load()
}

// Run receives datagrams until ctx is cancelled or a fatal receive error
// occurs. Read timeouts and malformed payloads never end the loop.
func (l *Listener) Run(ctx context.Context, deliver DeliverFunc) error {
	timeout := l.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	logging.Info("Awaiting announcements", zap.Duration("read_timeout", timeout))

	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := l.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &Error{Type: ErrTypeTransport, Component: "listener", Op: "set deadline", Err: err}
		}

		n, from, err := l.Conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if IsTimeout(err) {
				logging.Debug("No announcements within read timeout", zap.Duration("read_timeout", timeout))
				continue
			}
			return &Error{Type: ErrTypeTransport, Component: "listener", Op: "receive", Err: err}
		}

		l.received.Add(1)
		logging.LogDatagram("received", from.String(), buf[:n])

		env, err := protocol.Decode(buf[:n])
		if err != nil {
			l.dropped.Add(1)
			logging.Debug("Dropping malformed datagram",
				zap.Stringer("from", from),
				zap.Error(&Error{Type: ErrTypeDecode, Component: "listener", Op: "decode", Addr: from.String(), Err: err}),
			)
			continue
		}

		if err := deliver(ctx, Sighting{Envelope: *env, From: from, Via: ViaBroadcast}); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &Error{Type: ErrTypeDelivery, Component: "listener", Op: "deliver", Addr: from.String(), Err: err}
		}
	}
}
