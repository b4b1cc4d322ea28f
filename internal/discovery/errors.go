package discovery

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/witransfer/witransfer/internal/urls"
)

// ErrorType represents the category of a discovery error
type ErrorType int

const (
	// ErrTypeInit indicates the session could not start (bind, socket option, descriptor)
	ErrTypeInit ErrorType = iota
	// ErrTypeTransport indicates a send or receive failure while running
	ErrTypeTransport
	// ErrTypeDecode indicates a malformed datagram
	ErrTypeDecode
	// ErrTypeDelivery indicates the registry consumer is gone
	ErrTypeDelivery
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeInit:
		return "Initialization Error"
	case ErrTypeTransport:
		return "Transport Error"
	case ErrTypeDecode:
		return "Decode Error"
	case ErrTypeDelivery:
		return "Delivery Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

var (
	// ErrPeerNotFound is returned by Registry lookups for unknown addresses
	ErrPeerNotFound = errors.New("peer not found")

	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("session already started")

	// ErrStopped is wrapped in the init error Start returns when Stop wins
	// the race against it
	ErrStopped = errors.New("session stopped")

	errConsumerGone = errors.New("registry consumer stopped")
)

// Error is a failure raised by a discovery component
type Error struct {
	Type      ErrorType
	Component string // "session", "announcer", "listener", "registry", "mdns"
	Op        string // "bind", "send", "receive", ...
	Addr      string // Local or remote address involved, if any
	Err       error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Type.String())
	b.WriteString(": ")
	b.WriteString(e.Component)
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.Addr != "" {
		b.WriteString(" ")
		b.WriteString(e.Addr)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

func newInitError(op, addr string, err error) *Error {
	return &Error{Type: ErrTypeInit, Component: "session", Op: op, Addr: addr, Err: err}
}

func errorType(err error) (ErrorType, bool) {
	var discErr *Error
	if errors.As(err, &discErr) {
		return discErr.Type, true
	}
	return 0, false
}

// IsInitError checks if an error prevented the session from starting
func IsInitError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeInit
}

// IsTransportError checks if an error is a runtime send/receive failure
func IsTransportError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeTransport
}

// IsDecodeError checks if an error is a malformed datagram
func IsDecodeError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeDecode
}

// IsDeliveryError checks if an error is a failed hand-off to the registry
func IsDeliveryError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeDelivery
}

// IsTimeout reports whether err is a read deadline expiry
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// GetTroubleshootingHint returns user-facing advice for a session error
func GetTroubleshootingHint(err error) string {
	switch {
	case errors.Is(err, syscall.EADDRINUSE):
		return strings.Join([]string{
			"The discovery port is already in use.",
			"Troubleshooting:",
			"  • Another witransfer instance may be running on this host",
			"  • Choose a different port with --port",
			"  • Enable reuse_addr in the config to share the port",
			"  • See " + urls.Troubleshooting,
		}, "\n")

	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return strings.Join([]string{
			"Permission denied while opening the discovery socket.",
			"Troubleshooting:",
			"  • Ports below 1024 need elevated privileges",
			"  • Check firewall or sandbox rules for UDP broadcast",
			"  • See " + urls.Troubleshooting,
		}, "\n")

	case errors.Is(err, syscall.EADDRNOTAVAIL), errors.Is(err, syscall.ENETUNREACH):
		return strings.Join([]string{
			"No usable network interface for the requested address.",
			"Troubleshooting:",
			"  • Verify the --bind address belongs to this host",
			"  • Make sure you are connected to a network",
		}, "\n")

	case IsInitError(err):
		return "Discovery could not start. Run with --log-level debug for details."

	case IsTransportError(err):
		return "The network became unusable while discovering. Already discovered peers are kept."

	default:
		return ""
	}
}
