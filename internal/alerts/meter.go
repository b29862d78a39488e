package alerts

import (
	"sync"
	"time"
)

// Meter accumulates eviction counts between evaluation ticks and converts
// them to a per-minute rate. RatePM reads and resets the window, so calling
// it once per tick yields the rate for that tick's interval.
type Meter struct {
	mu    sync.Mutex
	count int
	since time.Time
	now   func() time.Time // injectable for deterministic tests
}

// NewMeter returns a Meter with an empty window starting now.
func NewMeter() *Meter {
	m := &Meter{now: time.Now}
	m.since = m.now()
	return m
}

// Add records n evictions. Non-positive n is ignored.
func (m *Meter) Add(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.count += n
	m.mu.Unlock()
}

// RatePM returns the per-minute eviction rate since the last call and resets
// the window.
func (m *Meter) RatePM() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	elapsed := now.Sub(m.since).Minutes()
	count := m.count
	m.count = 0
	m.since = now

	if elapsed <= 0 {
		return 0
	}
	return float64(count) / elapsed
}
