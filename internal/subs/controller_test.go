package subs

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

// --- helpers ----------------------------------------------------------------

// recorder collects every Batch delivered to a subscriber.
type recorder struct {
	batches []Batch
}

func (r *recorder) record(b Batch) { r.batches = append(r.batches, b) }

// evictedFast flattens the fast-tier evictions across all recorded batches.
func (r *recorder) evictedFast() []string {
	var out []string
	for _, b := range r.batches {
		out = append(out, b.Fast...)
	}
	return out
}

func (r *recorder) evictedSlow() []string {
	var out []string
	for _, b := range r.batches {
		out = append(out, b.Slow...)
	}
	return out
}

func keys(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}

// --- scenarios --------------------------------------------------------------

// Two panes with 5 visible rows each: fast capacity 16. Registering 20 keys
// evicts the first four.
func TestScenario_FastRegistrationOverflow(t *testing.T) {
	c := New()
	c.SetVisibleCount("trending", 5)
	c.SetVisibleCount("new", 5)

	rec := &recorder{}
	c.Subscribe(rec.record)

	for _, k := range keys("k", 20) {
		c.RegisterFast(k)
	}

	if got := rec.evictedFast(); !reflect.DeepEqual(got, []string{"k1", "k2", "k3", "k4"}) {
		t.Errorf("evicted: got %v, want [k1 k2 k3 k4]", got)
	}
	m := c.Metrics()
	if m.Counts.Fast != 16 || m.Limits.Fast != 16 {
		t.Errorf("metrics: got count %d limit %d, want 16/16", m.Counts.Fast, m.Limits.Fast)
	}
}

// Two panes with 30 rendered rows each: slow capacity 60. Registering 65 keys
// evicts the first five.
func TestScenario_SlowRegistrationOverflow(t *testing.T) {
	c := New()
	c.SetRenderedCount("trending", 30)
	c.SetRenderedCount("new", 30)

	rec := &recorder{}
	c.Subscribe(rec.record)

	for _, k := range keys("s", 65) {
		c.RegisterSlow(k)
	}

	if got := rec.evictedSlow(); !reflect.DeepEqual(got, []string{"s1", "s2", "s3", "s4", "s5"}) {
		t.Errorf("evicted: got %v", got)
	}
	m := c.Metrics()
	if m.Counts.Slow != 60 || m.Limits.Slow != 60 {
		t.Errorf("metrics: got count %d limit %d, want 60/60", m.Counts.Slow, m.Limits.Slow)
	}
}

// Locking to a two-key allow-list evicts the other eight of ten registered
// keys; unlocking restores the normal limit but never backfills the pool.
func TestScenario_LockFiltersAndUnlockNeverBackfills(t *testing.T) {
	c := New()
	c.SetVisibleCount("trending", 50)
	for _, k := range keys("k", 10) {
		c.RegisterFast(k)
	}

	rec := &recorder{}
	c.Subscribe(rec.record)

	c.Lock(Allow("k3", "k7"))

	m := c.Metrics()
	if m.Limits.Fast != 2 {
		t.Errorf("locked fast limit: got %d, want 2", m.Limits.Fast)
	}
	if m.Limits.Normal != 56 {
		t.Errorf("normal limit while locked: got %d, want 56", m.Limits.Normal)
	}
	if m.Counts.Fast != 2 {
		t.Errorf("locked fast count: got %d, want 2", m.Counts.Fast)
	}

	evicted := rec.evictedFast()
	if len(evicted) != 8 {
		t.Fatalf("evicted: got %v, want 8 keys", evicted)
	}
	want := map[string]bool{"k1": true, "k2": true, "k4": true, "k5": true, "k6": true, "k8": true, "k9": true, "k10": true}
	for _, k := range evicted {
		if !want[k] {
			t.Errorf("unexpected eviction %q", k)
		}
	}

	c.Unlock()
	m = c.Metrics()
	if m.Limits.Fast != 56 || m.Limits.Normal != 56 {
		t.Errorf("unlocked limits: got fast %d normal %d, want 56/56", m.Limits.Fast, m.Limits.Normal)
	}
	if m.Counts.Fast != 2 {
		t.Errorf("unlock must not backfill: got count %d, want 2", m.Counts.Fast)
	}
}

// Locking an empty fast pool evicts nothing and leaves the pool empty even
// though the allowed key has capacity.
func TestScenario_LockWithAbsentAllowedKey(t *testing.T) {
	c := New()
	c.SetVisibleCount("trending", 1)

	rec := &recorder{}
	c.Subscribe(rec.record)

	c.Lock(Allow("solo"))

	if got := rec.evictedFast(); len(got) != 0 {
		t.Errorf("evicted: got %v, want none", got)
	}
	m := c.Metrics()
	if m.Limits.Fast != 1 {
		t.Errorf("fast limit: got %d, want 1", m.Limits.Fast)
	}
	if m.Counts.Fast != 0 {
		t.Errorf("fast count: got %d, want 0", m.Counts.Fast)
	}
}

// --- lock state machine -----------------------------------------------------

func TestLock_DenyAllBlocksFastTier(t *testing.T) {
	c := New()
	c.RegisterFast("a")
	c.RegisterFast("b")

	rec := &recorder{}
	c.Subscribe(rec.record)

	c.Lock(DenyAll())

	if got := rec.evictedFast(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("evicted: got %v, want [a b]", got)
	}
	m := c.Metrics()
	if m.Limits.Fast != 0 || m.Counts.Fast != 0 {
		t.Errorf("metrics under deny-all: got limit %d count %d, want 0/0", m.Limits.Fast, m.Counts.Fast)
	}
}

func TestLock_ZeroValueRequestAdmitsNothing(t *testing.T) {
	c := New()
	c.RegisterFast("a")
	c.Lock(LockRequest{})

	m := c.Metrics()
	if m.Limits.Fast != 0 || m.Counts.Fast != 0 {
		t.Errorf("zero-value lock: got limit %d count %d, want 0/0", m.Limits.Fast, m.Counts.Fast)
	}
}

func TestLock_ReengageWithNewAllowList(t *testing.T) {
	c := New()
	for _, k := range []string{"a", "b", "c"} {
		c.RegisterFast(k)
	}
	c.Lock(Allow("a", "b"))

	rec := &recorder{}
	c.Subscribe(rec.record)

	c.Lock(Allow("b"))

	if got := rec.evictedFast(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("evicted on re-engage: got %v, want [a]", got)
	}
	m := c.Metrics()
	if m.Limits.Fast != 1 || m.Counts.Fast != 1 {
		t.Errorf("re-engaged metrics: got limit %d count %d, want 1/1", m.Limits.Fast, m.Counts.Fast)
	}
}

func TestLock_RegistrationWhileLockedRespectsPinnedCapacity(t *testing.T) {
	c := New()
	c.SetVisibleCount("trending", 20)
	c.RegisterFast("a")
	c.Lock(Allow("a"))

	rec := &recorder{}
	c.Subscribe(rec.record)

	// Capacity is pinned to 1, so a new admission evicts the older member.
	c.RegisterFast("b")

	if got := rec.evictedFast(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("evicted: got %v, want [a]", got)
	}
}

func TestLock_VisibleUpdateWhileLockedKeepsPinnedLimit(t *testing.T) {
	c := New()
	c.RegisterFast("a")
	c.Lock(Allow("a"))

	c.SetVisibleCount("trending", 100)

	m := c.Metrics()
	if m.Limits.Fast != 1 {
		t.Errorf("fast limit while locked: got %d, want 1", m.Limits.Fast)
	}
	if m.Limits.Normal != 106 {
		t.Errorf("normal limit: got %d, want 106", m.Limits.Normal)
	}

	c.Unlock()
	if m := c.Metrics(); m.Limits.Fast != 106 {
		t.Errorf("fast limit after unlock: got %d, want 106", m.Limits.Fast)
	}
}

func TestUnlock_WhenAlreadyUnlockedIsNoOp(t *testing.T) {
	c := New()
	c.RegisterFast("a")
	before := c.Metrics()

	rec := &recorder{}
	c.Subscribe(rec.record)

	c.Unlock()

	if len(rec.batches) != 1 {
		t.Fatalf("batches: got %d, want 1", len(rec.batches))
	}
	if !rec.batches[0].Empty() {
		t.Errorf("batch: got %+v, want empty", rec.batches[0])
	}
	if after := c.Metrics(); after != before {
		t.Errorf("metrics changed: %+v -> %+v", before, after)
	}
}

// --- notifier ---------------------------------------------------------------

// Every mutating operation emits exactly one Batch, empty or not, so
// subscribers that count calls see a uniform fan-out.
func TestNotifier_OneBatchPerOperation(t *testing.T) {
	c := New()
	rec := &recorder{}
	c.Subscribe(rec.record)

	c.SetVisibleCount("trending", 2)
	c.SetRenderedCount("trending", 4)
	c.RegisterFast("a")
	c.RegisterSlow("b")
	c.Lock(Allow("a"))
	c.Unlock()

	if len(rec.batches) != 6 {
		t.Errorf("batches: got %d, want 6", len(rec.batches))
	}
}

func TestNotifier_DeliveredSynchronously(t *testing.T) {
	c := New()
	c.SetVisibleCount("p", 0) // fast capacity = buffer only

	var seen []string
	c.Subscribe(func(b Batch) { seen = append(seen, b.Fast...) })

	for _, k := range keys("k", fastBuffer+1) {
		c.RegisterFast(k)
	}

	// The overflow eviction is visible immediately after the call returns.
	if !reflect.DeepEqual(seen, []string{"k1"}) {
		t.Errorf("seen: got %v, want [k1]", seen)
	}
}

func TestNotifier_Unsubscribe(t *testing.T) {
	c := New()
	rec := &recorder{}
	id := c.Subscribe(rec.record)

	c.RegisterFast("a")
	c.Unsubscribe(id)
	c.RegisterFast("b")

	if len(rec.batches) != 1 {
		t.Errorf("batches after unsubscribe: got %d, want 1", len(rec.batches))
	}
}

func TestNotifier_UnsubscribeUnknownID(t *testing.T) {
	c := New()
	c.Unsubscribe(42) // must not panic
}

func TestNotifier_PanickingSubscriberIsContained(t *testing.T) {
	c := New()
	rec := &recorder{}

	c.Subscribe(func(Batch) { panic("boom") })
	c.Subscribe(rec.record)

	c.RegisterFast("a")

	if len(rec.batches) != 1 {
		t.Errorf("second subscriber: got %d batches, want 1", len(rec.batches))
	}
}

// --- invariants -------------------------------------------------------------

// After every call in a mixed operation sequence both pools are within their
// enforced capacities.
func TestInvariant_SizeNeverExceedsLimit(t *testing.T) {
	c := New()

	check := func(step string) {
		t.Helper()
		m := c.Metrics()
		if m.Counts.Fast > m.Limits.Fast {
			t.Fatalf("%s: fast %d > limit %d", step, m.Counts.Fast, m.Limits.Fast)
		}
		if m.Counts.Slow > m.Limits.Slow {
			t.Fatalf("%s: slow %d > limit %d", step, m.Counts.Slow, m.Limits.Slow)
		}
	}

	c.SetVisibleCount("trending", 3)
	check("visible 3")
	c.SetRenderedCount("trending", 10)
	check("rendered 10")
	for _, k := range keys("f", 25) {
		c.RegisterFast(k)
		check("register fast " + k)
	}
	for _, k := range keys("s", 25) {
		c.RegisterSlow(k)
		check("register slow " + k)
	}
	c.SetVisibleCount("trending", 1)
	check("shrink visible")
	c.SetRenderedCount("trending", 2)
	check("shrink rendered")
	c.Lock(Allow("f20", "f21"))
	check("lock")
	c.SetVisibleCount("new", 9)
	check("visible while locked")
	c.Unlock()
	check("unlock")
}

func TestInvariant_SurvivorOrderPreserved(t *testing.T) {
	c := New()
	c.SetVisibleCount("p", 4) // capacity 10
	for _, k := range keys("k", 10) {
		c.RegisterFast(k)
	}

	c.SetVisibleCount("p", 0) // capacity 6, evicts k1..k4

	if got := c.FastKeys(); !reflect.DeepEqual(got, []string{"k5", "k6", "k7", "k8", "k9", "k10"}) {
		t.Errorf("survivors: got %v", got)
	}
}

// --- reset ------------------------------------------------------------------

func TestReset_RoundTrip(t *testing.T) {
	c := New()
	c.SetVisibleCount("trending", 12)
	c.SetRenderedCount("trending", 40)
	for _, k := range keys("k", 15) {
		c.RegisterFast(k)
		c.RegisterSlow(k)
	}
	c.Lock(Allow("k9"))

	c.Reset()

	want := Metrics{
		Counts: Counts{Fast: 0, Slow: 0},
		Limits: Limits{Fast: 6, Slow: 0, Normal: 6},
	}
	if got := c.Metrics(); got != want {
		t.Errorf("metrics after reset: got %+v, want %+v", got, want)
	}
	if c.Locked() {
		t.Error("lock must be released by reset")
	}
}

func TestReset_KeepsSubscribers(t *testing.T) {
	c := New()
	rec := &recorder{}
	c.Subscribe(rec.record)

	c.Reset()
	c.RegisterFast("a")

	if len(rec.batches) != 1 {
		t.Errorf("batches after reset: got %d, want 1", len(rec.batches))
	}
}

// --- concurrency ------------------------------------------------------------

func TestConcurrentMixedOps(t *testing.T) {
	c := New()
	c.SetVisibleCount("trending", 10)
	c.SetRenderedCount("trending", 50)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		k := fmt.Sprintf("k%d", i)
		go func() {
			defer wg.Done()
			c.RegisterFast(k)
		}()
		go func() {
			defer wg.Done()
			c.RegisterSlow(k)
		}()
		go func() {
			defer wg.Done()
			c.Metrics()
		}()
	}
	wg.Wait()

	m := c.Metrics()
	if m.Counts.Fast > m.Limits.Fast || m.Counts.Slow > m.Limits.Slow {
		t.Errorf("capacity invariant violated after concurrent ops: %+v", m)
	}
}
