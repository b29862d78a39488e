// Package quotes implements the in-memory cache of the latest quote per
// subscription key.
//
// The feed client writes every incoming tick with Put; the REST API and the
// WebSocket hub read with Get/List. A background loop (Run) evicts quotes
// whose key has not ticked within the configured TTL, and Delete removes
// quotes for keys whose wire subscription was torn down.
package quotes
