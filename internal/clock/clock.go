package clock

import (
	"sync"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// Real reads the wall clock in UTC.
type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC().Round(0) }

// Fake is a manually advanced clock used by tests.
type Fake struct {
	mu sync.Mutex
	t  time.Time
}

// NewFake returns a Fake clock reading t.
func NewFake(t time.Time) *Fake {
	return &Fake{t: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// Monotonic wraps a Clock so that successive readings strictly increase and
// hands out timestamp-derived identifiers that never repeat.
type Monotonic struct {
	base Clock

	mu     sync.Mutex
	last   time.Time
	lastID int64
}

// NewMonotonic wraps base. A nil base uses the wall clock.
func NewMonotonic(base Clock) *Monotonic {
	if base == nil {
		base = Real{}
	}
	return &Monotonic{base: base}
}

// Now returns the base reading, bumped by a nanosecond past the previous
// reading when the base has not moved forward.
func (m *Monotonic) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.base.Now()
	if !now.After(m.last) {
		now = m.last.Add(time.Nanosecond)
	}
	m.last = now
	return now
}

// NextID returns the current Unix millisecond, or the previous ID plus one
// when two IDs are requested within the same millisecond.
func (m *Monotonic) NextID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.base.Now().UnixMilli()
	if id <= m.lastID {
		id = m.lastID + 1
	}
	m.lastID = id
	return id
}

// Later returns now if it is after prev, otherwise prev plus a nanosecond.
func Later(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Nanosecond)
}
