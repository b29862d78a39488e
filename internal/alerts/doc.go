// Package alerts implements threshold alerting on the dashboard's
// subscription and feed health.
//
// The engine evaluates configured rules against a Stats sample each
// evaluation tick. Supported condition fields: fast_fill_pct,
// slow_fill_pct, evictions_pm, feed_uptime_pct, and feed_state.
// Alerts fire with a per-rule cooldown, resolve when the condition clears,
// and are delivered to the configured webhooks (slack, teams, plain http).
package alerts
