package subs

// pool is an insertion-ordered set of subscription keys with a mutable
// capacity. After every mutation len(order) <= capacity holds; when a
// mutation would break that, members are evicted from the oldest end.
//
// Keys keep their first-insertion position: re-registering a member does not
// refresh its eviction priority.
type pool struct {
	capacity int
	order    []string // oldest first
	members  map[string]struct{}
}

func newPool(capacity int) *pool {
	return &pool{
		capacity: capacity,
		members:  make(map[string]struct{}),
	}
}

// register appends key at the newest end and returns the keys evicted to stay
// within capacity, oldest first. Registering an existing member is a no-op.
func (p *pool) register(key string) []string {
	if _, ok := p.members[key]; ok {
		return nil
	}
	p.order = append(p.order, key)
	p.members[key] = struct{}{}
	return p.trim()
}

// setCapacity updates the capacity and returns the keys evicted if the pool
// now exceeds it. Growing the capacity never adds members back.
func (p *pool) setCapacity(n int) []string {
	if n < 0 {
		n = 0
	}
	p.capacity = n
	return p.trim()
}

// filterTo removes every member not present in allowed and returns the
// removed keys in pool order (oldest first). Allowed keys that are not
// members are not inserted.
func (p *pool) filterTo(allowed map[string]struct{}) []string {
	var evicted []string
	kept := make([]string, 0, len(p.order))
	for _, key := range p.order {
		if _, ok := allowed[key]; ok {
			kept = append(kept, key)
			continue
		}
		delete(p.members, key)
		evicted = append(evicted, key)
	}
	p.order = kept
	return evicted
}

// trim evicts from the oldest end until the size invariant holds.
func (p *pool) trim() []string {
	var evicted []string
	for len(p.order) > p.capacity {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.members, oldest)
		evicted = append(evicted, oldest)
	}
	return evicted
}

func (p *pool) size() int { return len(p.order) }

func (p *pool) has(key string) bool {
	_, ok := p.members[key]
	return ok
}

// keys returns a copy of the current membership, oldest first.
func (p *pool) keys() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}
