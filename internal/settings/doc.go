// Package settings holds the companion default base-limit store.
//
// The base limit is the default number of additional, currently invisible
// rows that may also hold a live channel. The rotation heuristic that spends
// this budget lives in the dashboard UI, not in this repository — the store
// only keeps the number, notifies subscribers when it changes, and is fed
// from configuration (including hot reload) and the REST API.
package settings
