package api

import (
	"github.com/tickerdeck/tickerdeck/internal/alerts"
	"github.com/tickerdeck/tickerdeck/internal/feedwatch"
	"github.com/tickerdeck/tickerdeck/internal/subs"
)

// SubscriptionsResponse is the payload for GET /api/v1/subscriptions.
type SubscriptionsResponse struct {
	subs.Metrics
	Locked   bool     `json:"locked"`
	FastKeys []string `json:"fast_keys"`
	SlowKeys []string `json:"slow_keys"`
}

// PaneRequest is the body for POST /api/v1/panes. Visible and Rendered are
// optional; only the fields present are applied.
type PaneRequest struct {
	Pane     string `json:"pane"`
	Visible  *int   `json:"visible,omitempty"`
	Rendered *int   `json:"rendered,omitempty"`
}

// RegisterRequest is the body for POST /api/v1/subscriptions.
type RegisterRequest struct {
	Tier string   `json:"tier"` // "fast" | "slow"
	Keys []string `json:"keys"`
}

// LockRequest is the body for POST /api/v1/lock. DenyAll takes precedence
// over Allow; with neither set the lock admits nothing.
type LockRequest struct {
	Allow   []string `json:"allow,omitempty"`
	DenyAll bool     `json:"deny_all,omitempty"`
}

// SettingsResponse is the payload for GET and PUT /api/v1/settings.
type SettingsResponse struct {
	BaseLimit int `json:"base_limit"`
}

// QuoteResponse is one live quote in GET /api/v1/quotes. Pair is the display
// symbol split out of the composite key; empty when the key is not in the
// canonical pair:token:chain form.
type QuoteResponse struct {
	Key       string  `json:"key"`
	Pair      string  `json:"pair,omitempty"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
	Volume24h float64 `json:"volume_24h"`
	UpdatedAt string  `json:"updated_at"` // RFC3339
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the body of
// every WebSocket broadcast.
type SnapshotResponse struct {
	Subscriptions SubscriptionsResponse `json:"subscriptions"`
	Quotes        []QuoteResponse       `json:"quotes"`
	Feed          feedwatch.Health      `json:"feed"`
	Alerts        []*alerts.Alert       `json:"alerts"`
	Settings      SettingsResponse      `json:"settings"`
	Stream        StreamResponse        `json:"stream"`
	Diagnostics   []DiagnosticHint      `json:"diagnostics"`
	GeneratedAt   string                `json:"generated_at"` // RFC3339
}

// StreamResponse reports the server's streaming surfaces: connected dashboard
// WebSocket clients and control frames queued toward the upstream feed.
type StreamResponse struct {
	Clients       int `json:"clients"`
	PendingFrames int `json:"pending_frames"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
