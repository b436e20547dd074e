package event

import "sync"

// Ring is a fixed-capacity overwrite buffer. Pushing past capacity
// silently discards the oldest item. Only capacity slots are ever
// retained regardless of how many items pass through.
//
// Producers (CDP callbacks) and consumers (HTTP handlers) run on
// different goroutines, so every operation takes the internal lock;
// pushes are atomic and a query observes a consistent snapshot.
type Ring[T any] struct {
	mu    sync.Mutex
	items []T
	head  int // index of the oldest item
	count int
}

// NewRing creates a ring with the given capacity. Capacity below 1 is
// clamped to 1 (a single-slot overwrite buffer).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends an item, overwriting the oldest when full. O(1), never
// blocks beyond the lock, never fails.
func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tail := (r.head + r.count) % len(r.items)
	r.items[tail] = item
	if r.count < len(r.items) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.items)
	}
}

// Query returns held items oldest-first. A nil predicate matches
// everything. With limit > 0 the last limit matching items are returned,
// still oldest-first: "most recent N" is the contract callers rely on.
func (r *Ring[T]) Query(pred func(T) bool, limit int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, 0, r.count)
	for i := 0; i < r.count; i++ {
		it := r.items[(r.head+i)%len(r.items)]
		if pred == nil || pred(it) {
			out = append(out, it)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Len returns the number of items currently held.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Clear resets the ring to empty. Capacity is unchanged.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.count = 0
}
