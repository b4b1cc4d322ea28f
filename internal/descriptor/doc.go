// Package descriptor collects the identity and platform metadata that a
// WiTransfer instance advertises to its peers.
//
// The System provider reads the current user from os/user and host details
// (hostname, OS, distribution) from gopsutil. Lookups that fail fall back to
// runtime values so that discovery can always start. Static returns a fixed
// descriptor and is used by tests and by callers that already know who they
// are.
//
// The package also answers address questions for the discovery session:
// which IPv4 address to advertise (LocalIP), which addresses belong to this
// host (InterfaceAddrs), and where subnet broadcasts go (SubnetBroadcasts).
package descriptor
