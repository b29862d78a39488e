// Package ws pushes live dashboard state to browser clients over WebSocket.
// A hub broadcasts the full snapshot on a fixed interval and forwards
// eviction batches from the subscription controller as they happen.
package ws
