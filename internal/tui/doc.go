// Package tui implements the interactive peer list for "witransfer discover --ui tui".
//
// It is a Bubble Tea program built from bubbles components: a spinner while
// no peer is known, a filterable list once peers arrive, and key help in
// the footer.
//
// # Architecture
//
// The registry runs on its own goroutine and must never wait for the
// terminal. Sink bridges the two: OnChange stores the newest snapshot in a
// one-slot channel, replacing any snapshot the model has not read yet, and
// the model pulls from that channel with a blocking tea.Cmd.
//
//	sink := tui.NewSink()
//	session, _ := discovery.NewSession(cfg, provider, sink)
//	_ = session.Start(ctx)
//
//	model := tui.NewModel(session.Envelope().Descriptor.Label(), sink, session.Status)
//	final, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
//	if peer, ok := final.(tui.Model).Selected(); ok {
//	    fmt.Println(peer)
//	}
package tui
