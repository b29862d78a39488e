package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tickerdeck/tickerdeck/internal/alerts"
	"github.com/tickerdeck/tickerdeck/internal/feed"
	"github.com/tickerdeck/tickerdeck/internal/feedwatch"
	"github.com/tickerdeck/tickerdeck/internal/quotes"
	"github.com/tickerdeck/tickerdeck/internal/settings"
	"github.com/tickerdeck/tickerdeck/internal/subs"
	"github.com/tickerdeck/tickerdeck/pkg/types"
)

// Deps collects the server-side state the API reads and mutates.
// Feed, Alerts, Sender and Clients may be nil when the corresponding feature
// is not configured.
type Deps struct {
	Controller *subs.Controller
	Quotes     *quotes.Store
	Settings   *settings.Store
	Feed       *feedwatch.Watcher
	Alerts     *alerts.Engine

	// Sender keeps the upstream wire subscriptions in step with admissions:
	// registrations subscribe here, evictions unsubscribe via the composition
	// root's controller subscriber.
	Sender *feed.Sender

	// Clients reports the number of connected dashboard stream clients.
	Clients func() int
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	deps Deps
	mux  *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(deps Deps) *Handler {
	h := &Handler{deps: deps, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/subscriptions", h.subscriptions)
	h.mux.HandleFunc("/api/v1/panes", h.panes)
	h.mux.HandleFunc("/api/v1/lock", h.lock)
	h.mux.HandleFunc("/api/v1/quotes", h.quotes)
	h.mux.HandleFunc("/api/v1/feed", h.feed)
	h.mux.HandleFunc("/api/v1/settings", h.settings)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// subscriptions serves GET /api/v1/subscriptions (current pool state) and
// POST /api/v1/subscriptions (register keys in a tier).
func (h *Handler) subscriptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jsonResp(w, http.StatusOK, h.subscriptionsState())

	case http.MethodPost:
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Keys) == 0 {
			jsonErr(w, http.StatusBadRequest, "keys must not be empty")
			return
		}
		switch req.Tier {
		case "fast":
			h.subscribeUpstream(feed.TierFast, req.Keys)
			for _, k := range req.Keys {
				h.deps.Controller.RegisterFast(k)
			}
		case "slow":
			h.subscribeUpstream(feed.TierSlow, req.Keys)
			for _, k := range req.Keys {
				h.deps.Controller.RegisterSlow(k)
			}
		default:
			jsonErr(w, http.StatusBadRequest, "tier must be \"fast\" or \"slow\"")
			return
		}
		jsonResp(w, http.StatusOK, h.subscriptionsState())

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// panes serves POST /api/v1/panes — upsert one pane's visible/rendered counts.
func (h *Handler) panes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req PaneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Pane == "" {
		jsonErr(w, http.StatusBadRequest, "pane must not be empty")
		return
	}

	if req.Visible != nil {
		h.deps.Controller.SetVisibleCount(req.Pane, *req.Visible)
	}
	if req.Rendered != nil {
		h.deps.Controller.SetRenderedCount(req.Pane, *req.Rendered)
	}
	jsonResp(w, http.StatusOK, h.subscriptionsState())
}

// lock serves POST /api/v1/lock (engage) and DELETE /api/v1/lock (release).
func (h *Handler) lock(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req LockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.DenyAll {
			h.deps.Controller.Lock(subs.DenyAll())
		} else {
			h.deps.Controller.Lock(subs.Allow(req.Allow...))
		}
		jsonResp(w, http.StatusOK, h.subscriptionsState())

	case http.MethodDelete:
		h.deps.Controller.Unlock()
		jsonResp(w, http.StatusOK, h.subscriptionsState())

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// quotes serves GET /api/v1/quotes — all live quotes.
func (h *Handler) quotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, quoteList(h.deps.Quotes))
}

// feed serves GET /api/v1/feed — latest feed-provider health.
func (h *Handler) feed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, feedHealth(h.deps.Feed))
}

// settings serves GET and PUT /api/v1/settings — the per-pair base limit.
func (h *Handler) settings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jsonResp(w, http.StatusOK, SettingsResponse{BaseLimit: h.deps.Settings.Get()})

	case http.MethodPut:
		var req SettingsResponse
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid request body")
			return
		}
		h.deps.Settings.Set(req.BaseLimit)
		jsonResp(w, http.StatusOK, SettingsResponse{BaseLimit: h.deps.Settings.Get()})

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// alerts serves GET /api/v1/alerts — firing plus recently resolved alerts.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, activeAlerts(h.deps.Alerts))
}

// snapshot serves GET /api/v1/snapshot — the full dashboard state.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.deps))
}

// --- helpers ----------------------------------------------------------------

// subscribeUpstream enqueues a subscribe frame for newly registered keys.
// It runs before admission: if a key is admitted and evicted in the same
// call, the eviction's unsubscribe frame then lands after this subscribe and
// the feed ends unsubscribed.
func (h *Handler) subscribeUpstream(tier string, keys []string) {
	if h.deps.Sender == nil {
		return
	}
	h.deps.Sender.Subscribe(tier, keys...)
}

func (h *Handler) subscriptionsState() SubscriptionsResponse {
	c := h.deps.Controller
	return SubscriptionsResponse{
		Metrics:  c.Metrics(),
		Locked:   c.Locked(),
		FastKeys: c.FastKeys(),
		SlowKeys: c.SlowKeys(),
	}
}

// BuildSnapshot assembles the full dashboard state. Shared with the WebSocket
// hub, which broadcasts the same structure on every tick.
func BuildSnapshot(deps Deps) SnapshotResponse {
	sub := SubscriptionsResponse{
		Metrics:  deps.Controller.Metrics(),
		Locked:   deps.Controller.Locked(),
		FastKeys: deps.Controller.FastKeys(),
		SlowKeys: deps.Controller.SlowKeys(),
	}
	health := feedHealth(deps.Feed)

	return SnapshotResponse{
		Subscriptions: sub,
		Quotes:        quoteList(deps.Quotes),
		Feed:          health,
		Alerts:        activeAlerts(deps.Alerts),
		Settings:      SettingsResponse{BaseLimit: deps.Settings.Get()},
		Stream:        streamState(deps),
		Diagnostics:   computeDiagnostics(sub, health),
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
	}
}

func streamState(deps Deps) StreamResponse {
	var st StreamResponse
	if deps.Clients != nil {
		st.Clients = deps.Clients()
	}
	if deps.Sender != nil {
		st.PendingFrames = deps.Sender.Pending()
	}
	return st
}

func quoteList(st *quotes.Store) []QuoteResponse {
	entries := st.List()
	out := make([]QuoteResponse, 0, len(entries))
	for _, e := range entries {
		pair, _, _, _ := types.SplitInstrumentKey(e.Quote.Key)
		out = append(out, QuoteResponse{
			Key:       e.Quote.Key,
			Pair:      pair,
			Price:     e.Quote.Price,
			Change24h: e.Quote.Change24h,
			Volume24h: e.Quote.Volume24h,
			UpdatedAt: e.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func feedHealth(w *feedwatch.Watcher) feedwatch.Health {
	if w == nil {
		return feedwatch.Health{State: feedwatch.StateUnknown}
	}
	return w.Health()
}

func activeAlerts(e *alerts.Engine) []*alerts.Alert {
	if e == nil {
		return []*alerts.Alert{}
	}
	return e.Active()
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
