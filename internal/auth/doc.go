// Package auth implements API-key authentication for the dashboard's HTTP
// surface (REST and the WebSocket upgrade request alike).
//
// Middleware(mode, header, key, next) checks the configured header on every
// request. With mode != "apikey" or an empty key it is a pass-through.
package auth
