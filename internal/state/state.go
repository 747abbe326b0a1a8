// Package state provides the observable container every entity store keeps
// its state in.
package state

import "sync"

// Container holds a value of S and publishes a snapshot to its subscribers
// after every mutation. Mutations run under a lock; subscribers are called
// synchronously on the mutating goroutine, after the lock is released, so a
// subscriber may read or mutate the container again.
//
// Snapshots share backing arrays with the container. Update functions must
// replace slices and maps they change instead of writing into them.
type Container[S any] struct {
	mu    sync.Mutex
	value S
	subs  map[int]func(S)
	next  int
}

func New[S any](initial S) *Container[S] {
	return &Container[S]{value: initial, subs: make(map[int]func(S))}
}

// Get returns the current snapshot.
func (c *Container[S]) Get() S {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Update applies fn to a copy of the state, stores the result and publishes
// it. The published snapshot is returned.
func (c *Container[S]) Update(fn func(*S)) S {
	c.mu.Lock()
	next := c.value
	fn(&next)
	c.value = next
	subs := c.subscribers()
	c.mu.Unlock()

	for _, sub := range subs {
		sub(next)
	}
	return next
}

// Set replaces the state and publishes it.
func (c *Container[S]) Set(v S) {
	c.Update(func(s *S) { *s = v })
}

// Subscribe registers fn for every future snapshot. The returned function
// removes the subscription and is safe to call more than once.
func (c *Container[S]) Subscribe(fn func(S)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *Container[S]) subscribers() []func(S) {
	out := make([]func(S), 0, len(c.subs))
	for id := 0; id < c.next; id++ {
		if fn, ok := c.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}
