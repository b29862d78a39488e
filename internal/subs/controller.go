package subs

import (
	"log/slog"
	"sync"
)

// Batch is the set of keys removed from each tier by one mutating call, in
// removal order (oldest first). Both slices may be empty; a Batch is still
// delivered so subscribers see one callback per operation.
type Batch struct {
	Fast []string `json:"fast"`
	Slow []string `json:"slow"`
}

// Empty reports whether the batch carries no evictions.
func (b Batch) Empty() bool { return len(b.Fast) == 0 && len(b.Slow) == 0 }

// Counts is the current membership size of each tier.
type Counts struct {
	Fast int `json:"fast"`
	Slow int `json:"slow"`
}

// Limits is the currently enforced capacity of each tier. Fast equals the
// allow-list size while a lock is engaged; Normal is always the
// unlocked-equivalent fast capacity.
type Limits struct {
	Fast   int `json:"fast"`
	Slow   int `json:"slow"`
	Normal int `json:"normal"`
}

// Metrics is a point-in-time snapshot of pool sizes and capacities.
type Metrics struct {
	Counts Counts `json:"counts"`
	Limits Limits `json:"limits"`
}

// LockRequest selects which keys may remain in the fast tier while a
// subscription lock is engaged. The zero value admits nothing; build requests
// with Allow or DenyAll so the intent is visible at the call site.
type LockRequest struct {
	allowed map[string]struct{}
}

// Allow returns a LockRequest admitting exactly the given keys (deduplicated).
func Allow(keys ...string) LockRequest {
	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		allowed[k] = struct{}{}
	}
	return LockRequest{allowed: allowed}
}

// DenyAll returns a LockRequest that blocks the entire fast tier.
func DenyAll() LockRequest {
	return LockRequest{allowed: map[string]struct{}{}}
}

type subscriber struct {
	id int
	fn func(Batch)
}

// Controller decides which instrument keys may hold a live-update channel.
// One instance is shared process-wide; the composition root constructs it and
// hands it to every collaborator.
type Controller struct {
	mu     sync.Mutex
	panes  *paneRegistry
	fast   *pool
	slow   *pool
	locked bool
	// allowed is the authoritative fast-tier membership ceiling while locked.
	allowed map[string]struct{}

	subscribers []subscriber
	nextSubID   int
}

// New returns a Controller with empty panes, empty pools, and the lock
// released. With zero visible rows the fast tier still has the buffer margin
// as capacity; the slow tier starts at zero.
func New() *Controller {
	c := &Controller{}
	c.reset()
	return c
}

// Reset clears the pane registry, both pools, and the lock state back to
// their initial values. Eviction subscribers stay registered: long-lived
// collaborators subscribe once at startup and must survive a cold start.
// Reset is an initializer, not a mutating operation — it emits no Batch.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *Controller) reset() {
	c.panes = newPaneRegistry()
	c.fast = newPool(c.panes.normalFastLimit())
	c.slow = newPool(c.panes.slowLimit())
	c.locked = false
	c.allowed = nil
}

// SetVisibleCount records pane's visible-row count (negative input is treated
// as zero) and re-derives the fast-tier capacity. While a lock is engaged the
// enforced fast capacity stays pinned to the allow-list size, so the update
// only moves the normal capacity that Unlock will restore.
func (c *Controller) SetVisibleCount(pane string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.panes.setVisible(pane, n)
	var b Batch
	if !c.locked {
		b.Fast = c.fast.setCapacity(c.panes.normalFastLimit())
	}
	c.publish(b)
}

// SetRenderedCount records pane's rendered-row count (negative input is
// treated as zero) and re-derives the slow-tier capacity, evicting the oldest
// slow members if it shrank below the current size.
func (c *Controller) SetRenderedCount(pane string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.panes.setRendered(pane, n)
	b := Batch{Slow: c.slow.setCapacity(c.panes.slowLimit())}
	c.publish(b)
}

// RegisterFast admits key into the fast tier, evicting the oldest fast
// members if the tier is over capacity afterwards. Registering a key that is
// already admitted is a no-op and does not refresh its eviction priority
// (strict first-insertion FIFO; refreshing on touch is a deliberate
// non-behavior).
func (c *Controller) RegisterFast(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publish(Batch{Fast: c.fast.register(key)})
}

// RegisterSlow admits key into the slow tier. Same semantics as RegisterFast.
func (c *Controller) RegisterSlow(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publish(Batch{Slow: c.slow.register(key)})
}

// Lock engages the subscription lock: the fast tier is filtered down to the
// request's allow-list — evicting every other member regardless of age,
// never admitting allowed-but-absent keys — and fast capacity is pinned to
// the allow-list size. Calling Lock while already locked re-engages with the
// new allow-list through the same path. The slow tier is unaffected.
func (c *Controller) Lock(req LockRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	allowed := req.allowed
	if allowed == nil {
		allowed = map[string]struct{}{}
	}
	c.locked = true
	c.allowed = allowed

	b := Batch{Fast: c.fast.filterTo(allowed)}
	// Survivors are a subset of the allow-list, so pinning never evicts more.
	c.fast.setCapacity(len(allowed))

	if !b.Empty() {
		slog.Debug("subs: lock engaged", "allowed", len(allowed), "evicted", len(b.Fast))
	}
	c.publish(b)
}

// Unlock releases the subscription lock and restores the fast-tier capacity
// to its normal (viewport-derived) value. Capacity only grows here, so
// nothing is evicted and nothing is re-admitted; the emitted Batch is empty.
// Unlock when already unlocked is a no-op that still emits an empty Batch.
func (c *Controller) Unlock() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b Batch
	if c.locked {
		c.locked = false
		c.allowed = nil
		b.Fast = c.fast.setCapacity(c.panes.normalFastLimit())
	}
	c.publish(b)
}

// Subscribe registers fn to receive every eviction Batch, in operation order,
// synchronously before the triggering call returns. It returns a handle for
// Unsubscribe.
//
// fn runs with the controller's internal mutex held and must not call back
// into mutating Controller methods. A panic inside fn is recovered and logged
// without affecting delivery to the remaining subscribers.
func (c *Controller) Subscribe(fn func(Batch)) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSubID++
	c.subscribers = append(c.subscribers, subscriber{id: c.nextSubID, fn: fn})
	return c.nextSubID
}

// Unsubscribe removes the subscriber registered under id. Unknown ids are
// ignored.
func (c *Controller) Unsubscribe(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.subscribers {
		if s.id == id {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			return
		}
	}
}

// Metrics returns the current pool sizes and capacities. Limits.Fast is the
// enforced fast capacity (the allow-list size while locked); Limits.Normal is
// always the unlocked-equivalent value.
func (c *Controller) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	normal := c.panes.normalFastLimit()
	fastLimit := normal
	if c.locked {
		fastLimit = len(c.allowed)
	}
	return Metrics{
		Counts: Counts{Fast: c.fast.size(), Slow: c.slow.size()},
		Limits: Limits{Fast: fastLimit, Slow: c.panes.slowLimit(), Normal: normal},
	}
}

// Locked reports whether the subscription lock is currently engaged.
func (c *Controller) Locked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked
}

// FastKeys returns the fast tier's current membership, oldest first.
func (c *Controller) FastKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fast.keys()
}

// SlowKeys returns the slow tier's current membership, oldest first.
func (c *Controller) SlowKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slow.keys()
}

// publish delivers b to every subscriber in registration order. Called with
// c.mu held.
func (c *Controller) publish(b Batch) {
	if !b.Empty() {
		slog.Debug("subs: evicted", "fast", len(b.Fast), "slow", len(b.Slow))
	}
	for _, s := range c.subscribers {
		deliver(s.fn, b)
	}
}

// deliver invokes one subscriber, containing panics so a misbehaving
// subscriber cannot block delivery to the others.
func deliver(fn func(Batch), b Batch) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("subs: eviction subscriber panicked", "panic", r)
		}
	}()
	fn(b)
}
