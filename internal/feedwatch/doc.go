// Package feedwatch monitors the upstream quote-feed provider.
//
// Most commercial feed gateways expose a Prometheus /metrics endpoint;
// feedwatch scrapes it on an interval, derives per-minute sent/dropped rates
// from counter deltas, tracks an uptime window over recent scrape outcomes,
// and condenses the result into a Health snapshot for the dashboard API,
// the WebSocket hub, and the alert engine.
//
// Rates need two data points: the first successful scrape records the
// baseline and reports the "unknown" state.
package feedwatch
