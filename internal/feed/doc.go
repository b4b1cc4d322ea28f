// Package feed publishes the live peer table to local tools.
//
// Feed is a discovery.DisplaySink backed by an HTTP server with two routes:
//
//	GET /peers  current snapshot as JSON
//	GET /ws     websocket; the current snapshot, then one message per change
//
// Every message has the same shape as a line written by ui.JSONSink.
// Each websocket client has a small send buffer. When a client falls behind
// it is disconnected, so OnChange never waits on the network.
//
// Usage:
//
//	f := feed.New()
//	if err := f.Start(ctx, ":8080"); err != nil {
//	    return err
//	}
//	session, _ := discovery.NewSession(cfg, provider, discovery.MultiSink{ui.NewPlainSink(printer), f})
package feed
