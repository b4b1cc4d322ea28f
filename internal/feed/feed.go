package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/witransfer/witransfer/internal/discovery"
	"github.com/witransfer/witransfer/internal/logging"
	"github.com/witransfer/witransfer/internal/ui"
	"github.com/witransfer/witransfer/internal/version"
)

const (
	// Time allowed to write a message to the client
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the client
	pongWait = 60 * time.Second

	// Send pings to the client with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients never send data, only control frames
	maxMessageSize = 512

	// Snapshots buffered per client before it counts as slow
	sendBuffer = 8

	shutdownTimeout = 5 * time.Second
)

// client is one connected websocket subscriber
type client struct {
	id     string
	remote string
	conn   *websocket.Conn
	send   chan []byte
}

// Feed serves the peer table over HTTP and websocket. It implements
// discovery.DisplaySink.
type Feed struct {
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.Mutex
	latest  []byte
	clients map[string]*client
	closed  bool

	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// New creates a feed holding an empty snapshot
func New() *Feed {
	f := &Feed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The feed only publishes LAN peers to local tools
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		now:     time.Now,
		clients: make(map[string]*client),
	}
	f.latest = f.encode(nil)
	return f
}

// Handler returns the routes served by the feed
func (f *Feed) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/peers", f.handlePeers)
	mux.HandleFunc("/ws", f.handleWebSocket)
	return mux
}

// Start listens on addr and serves until ctx is cancelled or Shutdown is
// called. It returns once the listener is bound.
func (f *Feed) Start(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	f.mu.Lock()
	f.listener = listener
	f.server = &http.Server{
		Handler:           f.Handler(),
		ReadHeaderTimeout: writeWait,
	}
	server := f.server
	f.mu.Unlock()

	logging.Info("Peer feed listening", zap.String("addr", listener.Addr().String()))

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Peer feed stopped", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		_ = f.Shutdown(context.Background())
	}()

	return nil
}

// Addr returns the bound address, or nil before Start
func (f *Feed) Addr() net.Addr {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener == nil {
		return nil
	}
	return f.listener.Addr()
}

// Shutdown closes every client and stops the HTTP server
func (f *Feed) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	server := f.server
	f.server = nil
	f.closed = true
	for id, c := range f.clients {
		close(c.send)
		delete(f.clients, id)
	}
	f.mu.Unlock()

	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	err := server.Shutdown(ctx)
	f.wg.Wait()
	logging.Info("Peer feed stopped")
	return err
}

// OnChange implements discovery.DisplaySink. A client whose buffer is full
// is disconnected instead of delaying the registry.
func (f *Feed) OnChange(peers []discovery.PeerEntry) {
	data := f.encode(peers)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.latest = data
	for id, c := range f.clients {
		select {
		case c.send <- data:
		default:
			logging.Warn("Dropping slow feed client",
				zap.String("client_id", id),
				zap.String("remote_addr", c.remote),
			)
			close(c.send)
			delete(f.clients, id)
		}
	}
}

// ClientCount returns the number of connected websocket clients
func (f *Feed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *Feed) encode(peers []discovery.PeerEntry) []byte {
	if peers == nil {
		peers = []discovery.PeerEntry{}
	}
	data, err := json.Marshal(ui.Snapshot{Time: f.now().UTC(), Count: len(peers), Peers: peers})
	if err != nil {
		logging.Error("Failed to encode feed snapshot", zap.Error(err))
		return []byte(`{"count":0,"peers":[]}`)
	}
	return data
}

func (f *Feed) handlePeers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	f.mu.Lock()
	data := f.latest
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Server", version.UserAgent())
	_, _ = w.Write(data)
}

func (f *Feed) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	c := &client{
		id:     uuid.New().String(),
		remote: r.RemoteAddr,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}

	// Queue the current snapshot under the same lock that registers the
	// client so no change can slip in between
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.send <- f.latest
	f.clients[c.id] = c
	f.mu.Unlock()

	logging.Info("Feed client connected",
		zap.String("client_id", c.id),
		zap.String("remote_addr", c.remote),
	)

	go f.writePump(c)
	f.readPump(c)
}

// readPump consumes control frames until the client goes away
func (f *Feed) readPump(c *client) {
	defer func() {
		f.remove(c)
		_ = c.conn.Close()
		logging.Info("Feed client disconnected",
			zap.String("client_id", c.id),
			zap.String("remote_addr", c.remote),
		)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("Feed client read error",
					zap.String("client_id", c.id),
					zap.Error(err),
				)
			}
			return
		}
	}
}

// writePump sends queued snapshots and keepalive pings
func (f *Feed) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logging.Debug("Feed client write failed",
					zap.String("client_id", c.id),
					zap.Error(err),
				)
				f.remove(c)
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				f.remove(c)
				return
			}
		}
	}
}

// remove unregisters c if it is still registered
func (f *Feed) remove(c *client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if current, ok := f.clients[c.id]; ok && current == c {
		close(c.send)
		delete(f.clients, c.id)
	}
}
