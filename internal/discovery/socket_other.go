//go:build !unix && !windows

package discovery

import "syscall"

// Platforms without setsockopt rely on the runtime's default UDP options
func socketControl(reuseAddr bool) func(network, address string, c syscall.RawConn) error {
	return nil
}
