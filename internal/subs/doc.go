// Package subs implements the subscription admission and eviction controller
// for tickerdeck.
//
// The dashboard can render thousands of distinct instruments, but only a
// bounded set of them may hold a live-update channel at any moment. The
// controller splits admitted keys into two tiers: a fast tier for rows that
// need immediate updates (capacity follows the number of visible rows plus a
// fixed buffer) and a slow tier for rows that are rendered but off-screen
// (capacity follows the rendered-row count). Capacities move with viewport
// state reported through SetVisibleCount/SetRenderedCount, and admissions that
// push a tier over capacity evict the oldest members first.
//
// A lock mode, engaged while a single instrument's detail view is focused,
// pins the fast tier to an explicit allow-list: everything else is evicted,
// and releasing the lock restores normal capacity without re-admitting
// anything.
//
// Every mutating call delivers exactly one eviction Batch — possibly empty —
// to all registered subscribers before it returns. Downstream code uses those
// batches to tear down wire-level subscriptions.
//
// Controller is safe for concurrent use; every public method holds a single
// internal mutex for its full duration.
package subs
