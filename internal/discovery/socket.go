package discovery

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

// listenUDP opens the shared broadcast-capable IPv4 socket
func listenUDP(ctx context.Context, addr netip.AddrPort, reuseAddr bool) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: socketControl(reuseAddr)}

	pc, err := lc.ListenPacket(ctx, "udp4", addr.String())
	if err != nil {
		return nil, err
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, fmt.Errorf("unexpected packet conn type %T", pc)
	}
	return conn, nil
}
