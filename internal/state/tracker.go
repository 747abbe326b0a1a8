package state

import "sync"

// Tracker counts mutations of a persisted collection so a store knows
// whether its last saved snapshot is still current.
//
// A persister calls Mark before reading the snapshot and Saved with the
// returned generation once the write succeeded. Stores call Touch inside the
// state update that performs the mutation, so a reader holding the state lock
// sees a generation that matches the collection.
type Tracker struct {
	mu    sync.Mutex
	gen   uint64
	saved uint64
}

// Touch records a mutation.
func (t *Tracker) Touch() {
	t.mu.Lock()
	t.gen++
	t.mu.Unlock()
}

// Mark returns the current generation.
func (t *Tracker) Mark() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// Saved records that everything up to gen is persisted.
func (t *Tracker) Saved(gen uint64) {
	t.mu.Lock()
	if gen > t.saved {
		t.saved = gen
	}
	t.mu.Unlock()
}

// Reset marks the current generation as persisted.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.saved = t.gen
	t.mu.Unlock()
}

// Clean returns the current generation and whether it is persisted.
func (t *Tracker) Clean() (gen uint64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen, t.gen == t.saved
}

// Unchanged reports whether no mutation happened since gen was read.
func (t *Tracker) Unchanged(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen == gen
}

// Dirty reports whether a mutation happened after the last save.
func (t *Tracker) Dirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen != t.saved
}
