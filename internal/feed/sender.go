package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tickerdeck/tickerdeck/internal/config"
	"github.com/tickerdeck/tickerdeck/internal/quotes"
	"github.com/tickerdeck/tickerdeck/internal/subs"
)

// Tier names used on the wire. They match the controller's two pools.
const (
	TierFast = "fast"
	TierSlow = "slow"
)

const (
	// writeTimeout is the deadline for a single write to the feed.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the client sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// ControlFrame is the JSON envelope sent to the feed to change the wire
// subscription set.
type ControlFrame struct {
	Op   string   `json:"op"`   // "subscribe" | "unsubscribe"
	Tier string   `json:"tier"` // "fast" | "slow"
	Keys []string `json:"keys"`
}

// tickFrame is the JSON envelope the feed sends for every quote update.
type tickFrame struct {
	Event     string  `json:"event"` // "tick"
	Key       string  `json:"key"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
	Volume24h float64 `json:"volume_24h"`
}

// dialFunc is the function signature used to open the feed connection.
// Abstracted so tests can inject an httptest-backed dialer.
type dialFunc func(ctx context.Context, endpoint string) (*websocket.Conn, error)

// Sender maintains the wire subscription set on the upstream quote feed.
// Control frames are queued without blocking; Run must be called in a
// goroutine to drain the queue and pump incoming ticks.
type Sender struct {
	endpoint string
	out      chan ControlFrame
	onQuote  func(quotes.Quote)
	dialFn   dialFunc
}

// New creates a Sender for the configured feed endpoint. onQuote is called
// for every incoming tick; nil is allowed when the caller only sends.
func New(cfg config.FeedConfig, onQuote func(quotes.Quote)) *Sender {
	return &Sender{
		endpoint: cfg.Endpoint,
		out:      make(chan ControlFrame, cfg.SendBuffer),
		onQuote:  onQuote,
		dialFn:   defaultDial,
	}
}

// Subscribe enqueues a subscribe frame for the given keys on tier.
// Empty key lists are dropped.
func (s *Sender) Subscribe(tier string, keys ...string) {
	s.enqueue(ControlFrame{Op: "subscribe", Tier: tier, Keys: keys})
}

// Unsubscribe enqueues an unsubscribe frame for the given keys on tier.
// Empty key lists are dropped.
func (s *Sender) Unsubscribe(tier string, keys ...string) {
	s.enqueue(ControlFrame{Op: "unsubscribe", Tier: tier, Keys: keys})
}

// ApplyEvictions tears down the wire subscriptions for one eviction batch.
// Intended as a subs.Controller eviction subscriber; empty batches are a
// no-op, so the uniform one-batch-per-operation fan-out costs nothing here.
func (s *Sender) ApplyEvictions(b subs.Batch) {
	if len(b.Fast) > 0 {
		s.Unsubscribe(TierFast, b.Fast...)
	}
	if len(b.Slow) > 0 {
		s.Unsubscribe(TierSlow, b.Slow...)
	}
}

// enqueue adds f to the outbound queue. If the queue is full the oldest
// pending frame is evicted to make room — the newest intent wins.
func (s *Sender) enqueue(f ControlFrame) {
	if len(f.Keys) == 0 {
		return
	}
	for {
		select {
		case s.out <- f:
			return
		default:
			select {
			case dropped := <-s.out:
				slog.Warn("feed: send queue full — dropping oldest frame",
					"op", dropped.Op, "tier", dropped.Tier, "keys", len(dropped.Keys))
			default:
			}
		}
	}
}

// Pending returns the number of queued control frames, reported in the
// snapshot's stream section.
func (s *Sender) Pending() int { return len(s.out) }

// Run dials the feed and pumps frames until ctx is cancelled or the
// connection dies. There is no reconnect: the error describes why the
// connection ended.
func (s *Sender) Run(ctx context.Context) error {
	conn, err := s.dialFn(ctx, s.endpoint)
	if err != nil {
		return fmt.Errorf("feed: dial %q: %w", s.endpoint, err)
	}
	slog.Info("feed: connected", "endpoint", s.endpoint)

	readDone := make(chan error, 1)
	go func() { readDone <- s.readPump(conn) }()

	err = s.writePump(ctx, conn, readDone)
	conn.Close()
	return err
}

// writePump drains the control queue to conn and sends periodic pings.
// Returns when ctx is cancelled or either pump hits a connection error.
func (s *Sender) writePump(ctx context.Context, conn *websocket.Conn, readDone <-chan error) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
			return nil

		case err := <-readDone:
			if err != nil {
				return fmt.Errorf("feed: read: %w", err)
			}
			return nil

		case f := <-s.out:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			data, err := json.Marshal(f)
			if err != nil {
				slog.Error("feed: marshal control frame", "err", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("feed: write: %w", err)
			}
			slog.Debug("feed: sent control frame", "op", f.Op, "tier", f.Tier, "keys", len(f.Keys))

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("feed: ping: %w", err)
			}
		}
	}
}

// readPump decodes incoming tick frames and forwards them to onQuote.
// Unknown events are ignored. Returns nil on a clean close.
func (s *Sender) readPump(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var tick tickFrame
		if err := json.Unmarshal(data, &tick); err != nil {
			slog.Warn("feed: unparseable frame — skipping", "err", err)
			continue
		}
		if tick.Event != "tick" || tick.Key == "" {
			continue
		}
		if s.onQuote != nil {
			s.onQuote(quotes.Quote{
				Key:       tick.Key,
				Price:     tick.Price,
				Change24h: tick.Change24h,
				Volume24h: tick.Volume24h,
			})
		}
	}
}

// defaultDial opens the WebSocket connection using the default dialer.
func defaultDial(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	return conn, err
}
