// Package api exposes the REST surface of the tickerdeck server. It reads
// controller, quote-store, feed-health and alert state and serves JSON under
// /api/v1/*. Mutating endpoints drive the subscription controller directly.
package api
