// Package discovery finds other WiTransfer instances on the local network.
//
// A Session owns one UDP socket bound to the discovery port with
// SO_BROADCAST enabled. Three goroutines share it:
//
//   - the Announcer broadcasts the local envelope immediately and then on
//     a fixed interval
//   - the Listener reads datagrams, decodes them and hands every decodable
//     envelope to the registry through a bounded queue
//   - the Registry consumer applies the admission rules and notifies the
//     DisplaySink whenever a peer is added or removed
//
// With a peer TTL a sweeper goroutine also expires silent peers. Sink
// notifications from the consumer and the sweeper are serialized, so the
// last snapshot a sink sees always matches the table.
//
// # Admission
//
// An envelope is admitted only if its protocol tag equals
// protocol.Identifier, its source address is not one of the session's own
// addresses, and that address is not already in the table. Duplicate
// sightings only refresh LastSeen. The outcome never depends on arrival
// order, so any interleaving of the same sightings yields the same table.
//
// # Failure Handling
//
// Errors opening the socket are ErrTypeInit and returned from Start; the
// session never reaches StateRunning. After that, a failing Announcer or
// Listener stops alone and the other keeps running. Once both have stopped
// the session stops itself. Malformed datagrams are counted and dropped.
//
// # Usage Example
//
//	cfg := discovery.DefaultConfig()
//	session, err := discovery.NewSession(cfg, descriptor.NewSystem(""), sink)
//	if err != nil {
//	    return err
//	}
//	if err := session.Start(ctx); err != nil {
//	    fmt.Println(discovery.GetTroubleshootingHint(err))
//	    return err
//	}
//	defer session.Stop()
//
//	for _, peer := range session.Registry().List() {
//	    fmt.Println(peer)
//	}
//
// # mDNS
//
// With Config.MDNS set, a Beacon also registers the session as a
// "_witransfer._udp" service and feeds browsed services into the same
// queue, where the same admission rules apply.
package discovery
