//go:build windows

package discovery

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

func socketControl(reuseAddr bool) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var optErr error
		err := c.Control(func(fd uintptr) {
			if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_BROADCAST, 1); err != nil {
				optErr = fmt.Errorf("set SO_BROADCAST: %w", err)
				return
			}
			if reuseAddr {
				if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
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
