package urls

// Documentation URLs for guides and troubleshooting.
// All URLs point into the project repository.

// Repository is the project home page
const Repository = "https://github.com/witransfer/witransfer"

// Troubleshooting covers ports in use, firewalls and interfaces that
// drop broadcast traffic.
const Troubleshooting = Repository + "/blob/main/docs/troubleshooting.md"

// DiscoveryProtocol documents the announcement datagram for implementers
// of compatible peers.
const DiscoveryProtocol = Repository + "/blob/main/docs/protocol.md"
