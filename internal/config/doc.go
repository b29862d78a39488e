// Package config loads the tickerdeckd configuration from the `deck:` section
// of config.yaml.
//
// Config fields:
//   - HTTPPort                 — port for the REST API and WebSocket hub (default 8080)
//   - Auth.Mode                — "apikey" or "none"
//   - Auth.KeyEnv              — environment variable holding the expected API key
//   - Auth.Header              — HTTP header name (default "x-api-key")
//   - Feed.Endpoint            — ws:// or wss:// URL of the upstream quote feed
//   - Feed.SendBuffer          — outbound control-frame queue depth (default 64)
//   - Quotes.TTL               — how long a cached quote stays live (default 2m)
//   - Broadcast.Interval       — dashboard snapshot broadcast period (default 1s)
//   - Subscriptions.DefaultBaseLimit — default invisible-row channel budget (default 10)
//   - FeedHealth.*             — Prometheus endpoint of the feed provider and scrape settings
//   - Alerts.*                 — threshold rules and webhook delivery targets
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) hot-reloads the file via fsnotify.
package config
