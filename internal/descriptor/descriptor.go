package descriptor

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/witransfer/witransfer/internal/protocol"
)

// Provider supplies the DeviceDescriptor for the local host.
// Current must not block indefinitely; it honors ctx.
type Provider interface {
	Current(ctx context.Context) (protocol.DeviceDescriptor, error)
}

// Static is a Provider that always returns the same descriptor
type Static protocol.DeviceDescriptor

// Current implements Provider
func (s Static) Current(ctx context.Context) (protocol.DeviceDescriptor, error) {
	desc := protocol.DeviceDescriptor(s)
	if desc.ConcurrencyHint < 1 {
		desc.ConcurrencyHint = 1
	}
	return desc, ctx.Err()
}

// System collects the descriptor from the operating system
type System struct {
	// DisplayName overrides the user's full name when non-empty
	DisplayName string

	hostInfo    func(ctx context.Context) (*host.InfoStat, error)
	currentUser func() (*user.User, error)
}

// NewSystem creates a provider backed by gopsutil and os/user
func NewSystem(displayName string) *System {
	return &System{
		DisplayName: displayName,
		hostInfo:    host.InfoWithContext,
		currentUser: user.Current,
	}
}

// Current implements Provider. Missing pieces of metadata fall back to
// runtime values rather than failing; only a cancelled ctx is an error.
func (s *System) Current(ctx context.Context) (protocol.DeviceDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return protocol.DeviceDescriptor{}, fmt.Errorf("descriptor lookup cancelled: %w", err)
	}

	desc := protocol.DeviceDescriptor{
		Platform:        PlatformName(runtime.GOOS),
		ConcurrencyHint: runtime.NumCPU(),
	}

	if s.currentUser != nil {
		if u, err := s.currentUser(); err == nil {
			desc.UserName = stripDomain(u.Username)
			desc.DisplayName = firstGecosField(u.Name)
		}
	}
	if desc.UserName == "" {
		desc.UserName = os.Getenv("USER")
	}
	if desc.DisplayName == "" {
		desc.DisplayName = desc.UserName
	}
	if s.DisplayName != "" {
		desc.DisplayName = s.DisplayName
	}

	if s.hostInfo != nil {
		if info, err := s.hostInfo(ctx); err == nil && info != nil {
			desc.HostName = info.Hostname
			if info.OS != "" {
				desc.Platform = PlatformName(info.OS)
			}
			desc.Distro = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
		}
	}
	if desc.HostName == "" {
		if name, err := os.Hostname(); err == nil {
			desc.HostName = name
		}
	}
	if desc.Distro == "" {
		desc.Distro = "Unknown"
	}
	if desc.ConcurrencyHint < 1 {
		desc.ConcurrencyHint = 1
	}

	return desc, nil
}

// PlatformName maps a GOOS value to a human-readable platform name
func PlatformName(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "darwin":
		return "Mac OS"
	case "windows":
		return "Windows"
	case "freebsd":
		return "FreeBSD"
	case "openbsd":
		return "OpenBSD"
	case "netbsd":
		return "NetBSD"
	case "android":
		return "Android"
	case "ios":
		return "iOS"
	default:
		return goos
	}
}

// stripDomain removes a Windows "DOMAIN\" prefix from a user name
func stripDomain(name string) string {
	if i := strings.LastIndex(name, `\`); i >= 0 {
		return name[i+1:]
	}
	return name
}

// firstGecosField returns the full-name part of a GECOS string
func firstGecosField(gecos string) string {
	name, _, _ := strings.Cut(gecos, ",")
	return strings.TrimSpace(name)
}
