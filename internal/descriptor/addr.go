package descriptor

import (
	"net"
	"net/netip"
)

// routeAddr is only used to pick the outbound interface; dialing UDP sends nothing
const routeAddr = "192.0.2.1:9"

// LocalIP returns the address this host advertises in its announcements.
// A specific bind address wins; otherwise the outbound interface address is
// used, then the first non-loopback IPv4 address, then 127.0.0.1.
func LocalIP(bind netip.Addr) netip.Addr {
	if bind.IsValid() && !bind.IsUnspecified() {
		return bind
	}

	if conn, err := net.Dial("udp4", routeAddr); err == nil {
		defer conn.Close()
		if udpAddr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
			if addr, ok := netip.AddrFromSlice(udpAddr.IP); ok {
				addr = addr.Unmap()
				if !addr.IsUnspecified() {
					return addr
				}
			}
		}
	}

	if addrs, err := InterfaceAddrs(); err == nil {
		for _, addr := range addrs {
			if !addr.IsLoopback() {
				return addr
			}
		}
	}

	return netip.AddrFrom4([4]byte{127, 0, 0, 1})
}

// InterfaceAddrs returns the IPv4 addresses of all interfaces that are up,
// loopback included. Used to recognise our own broadcasts.
func InterfaceAddrs() ([]netip.Addr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var result []netip.Addr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			if addr, ok := netip.AddrFromSlice(ipnet.IP.To4()); ok {
				result = append(result, addr)
			}
		}
	}

	return result, nil
}

// SubnetBroadcasts returns the directed broadcast address of every up,
// broadcast-capable IPv4 interface
func SubnetBroadcasts() ([]netip.Addr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var result []netip.Addr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagBroadcast == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if prefix, ok := prefixFromIPNet(ipnet); ok {
				result = append(result, DirectedBroadcast(prefix))
			}
		}
	}
	return result, nil
}

// DirectedBroadcast returns the all-ones host address of an IPv4 prefix
func DirectedBroadcast(prefix netip.Prefix) netip.Addr {
	ip := prefix.Masked().Addr().As4()
	bits := prefix.Bits()
	for i := 0; i < 4; i++ {
		// Bits of byte i that belong to the host part
		hostBits := 8 - max(0, min(8, bits-8*i))
		ip[i] |= byte(1<<hostBits - 1)
	}
	return netip.AddrFrom4(ip)
}

func prefixFromIPNet(ipnet *net.IPNet) (netip.Prefix, bool) {
	ip4 := ipnet.IP.To4()
	if ip4 == nil {
		return netip.Prefix{}, false
	}
	ones, bits := ipnet.Mask.Size()
	if bits != 32 {
		return netip.Prefix{}, false
	}
	addr, _ := netip.AddrFromSlice(ip4)
	return netip.PrefixFrom(addr, ones), true
}
