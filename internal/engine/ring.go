package engine

// ring is a bounded append-only buffer that drops its oldest entries once
// max is exceeded. Not synchronized; the engine mutates rings only under its
// own mutex.
type ring[T any] struct {
	max   int
	items []T
}

func newRing[T any](max int) ring[T] {
	return ring[T]{max: max}
}

func (r *ring[T]) push(v T) {
	r.items = append(r.items, v)
	if len(r.items) > r.max {
		r.items = r.items[len(r.items)-r.max:]
	}
}

// tail returns a copy of the newest n entries in oldest-first order. n <= 0
// or n beyond the current length returns everything.
func (r *ring[T]) tail(n int) []T {
	if n <= 0 || n > len(r.items) {
		n = len(r.items)
	}
	out := make([]T, n)
	copy(out, r.items[len(r.items)-n:])
	return out
}

// last returns the newest entry, false when the ring is empty.
func (r *ring[T]) last() (T, bool) {
	if len(r.items) == 0 {
		var zero T
		return zero, false
	}
	return r.items[len(r.items)-1], true
}

func (r *ring[T]) all() []T { return r.items }

func (r *ring[T]) len() int { return len(r.items) }

func (r *ring[T]) clear() { r.items = nil }
