//go:build unix

package discovery

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

func socketControl(reuseAddr bool) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var optErr error
		err := c.Control(func(fd uintptr) {
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
				optErr = fmt.Errorf("set SO_BROADCAST: %w", err)
				return
			}
			if reuseAddr {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					optErr = fmt.Errorf("set SO_REUSEADDR: %w", err)
				}
			}
		})
		if err != nil {
			return err
		}
		return optErr
	}
}
