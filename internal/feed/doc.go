// Package feed implements the wire-subscription sender: a WebSocket client
// that keeps the upstream quote feed's subscription set in sync with the
// admission controller's decisions.
//
// Subscribe/Unsubscribe enqueue JSON control frames on a bounded queue; a
// write pump drains the queue to the connection, and a read pump decodes
// incoming quote ticks and hands them to the configured callback. When the
// queue is full the oldest pending frame is dropped so callers never block.
//
// The sender deliberately has no reconnect or backoff logic: it dials once
// and Run returns when the connection dies. Supervision belongs to the
// process manager around tickerdeckd.
package feed
