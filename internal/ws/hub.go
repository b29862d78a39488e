package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tickerdeck/tickerdeck/internal/api"
	"github.com/tickerdeck/tickerdeck/internal/subs"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins — callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients. Event is "snapshot" for the
// periodic full-state broadcast and "evictions" for controller eviction
// batches forwarded as they occur.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub fans dashboard state out to WebSocket clients: the full snapshot on a
// fixed interval, eviction batches as they happen. All client bookkeeping is
// owned by the Run loop; join, leave and broadcast reach it over channels, so
// Run must be started before clients connect.
type Hub struct {
	deps     api.Deps
	interval time.Duration

	joins  chan *client
	leaves chan *client
	outbox chan []byte
	done   chan struct{}

	// count mirrors the Run loop's client set size so Count never has to
	// round-trip through the loop. Snapshots read it mid-broadcast.
	count atomic.Int64
}

// client represents one connected WebSocket client.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub that reads from deps and broadcasts every interval.
func New(deps api.Deps, interval time.Duration) *Hub {
	return &Hub{
		deps:     deps,
		interval: interval,
		joins:    make(chan *client),
		leaves:   make(chan *client),
		outbox:   make(chan []byte, 8),
		done:     make(chan struct{}),
	}
}

// Run owns the client set. It admits and removes clients, fans queued
// messages out, and broadcasts a fresh snapshot on every tick. Blocks until
// ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	clients := make(map[*client]struct{})
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			for c := range clients {
				close(c.send)
			}
			h.count.Store(0)
			return

		case c := <-h.joins:
			clients[c] = struct{}{}
			h.count.Store(int64(len(clients)))
			// Seed the new client so the UI has data before the first tick.
			if data, err := h.snapshotMessage(); err == nil {
				c.offer(data)
			}

		case c := <-h.leaves:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
				h.count.Store(int64(len(clients)))
			}

		case data := <-h.outbox:
			h.fanOut(clients, data)

		case <-t.C:
			if data, err := h.snapshotMessage(); err == nil {
				h.fanOut(clients, data)
			}
		}
	}
}

// NotifyEvictions queues an eviction batch for broadcast. Empty batches are
// skipped; clients learn the resulting state from the next snapshot anyway.
// Safe to call from a controller subscriber: the queue send never blocks.
func (h *Hub) NotifyEvictions(b subs.Batch) {
	if b.Empty() {
		return
	}
	data, err := json.Marshal(Message{Event: "evictions", Data: b})
	if err != nil {
		return
	}
	select {
	case h.outbox <- data:
	default:
		// Broadcast queue is backed up; the next snapshot tick covers it.
	}
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client
// until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	select {
	case h.joins <- c:
	case <-h.done:
		conn.Close()
		return
	}
	defer func() {
		select {
		case h.leaves <- c:
		case <-h.done:
		}
	}()

	go c.writePump()
	c.readPump() // blocks until the connection closes
}

// Count returns the number of currently connected clients. Non-blocking, so
// snapshot builders may call it even while the Run loop is mid-broadcast.
func (h *Hub) Count() int {
	return int(h.count.Load())
}

// --- internal ---------------------------------------------------------------

func (h *Hub) snapshotMessage() ([]byte, error) {
	return json.Marshal(Message{
		Event: "snapshot",
		Data:  api.BuildSnapshot(h.deps),
	})
}

// fanOut offers data to every client. A client whose buffer is full gets
// disconnected rather than stalling the loop.
func (h *Hub) fanOut(clients map[*client]struct{}, data []byte) {
	for c := range clients {
		if !c.offer(data) {
			delete(clients, c)
			close(c.send)
		}
	}
	h.count.Store(int64(len(clients)))
}

// offer enqueues data without blocking. Returns false when the client's
// buffer is full.
func (c *client) offer(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// writePump drains the client's send channel onto the connection and sends
// periodic ping frames. Runs in its own goroutine per client; exits when the
// send channel closes or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Hub removed this client or is shutting down.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes frames to service pong/close control messages and to
// detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
