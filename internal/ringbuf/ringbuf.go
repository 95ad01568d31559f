// Package ringbuf provides a fixed-capacity ring that keeps the most recent
// values. Pushing onto a full ring overwrites the oldest value, so the ring
// always holds the last Cap() values in arrival order.
package ringbuf

// Ring is a bounded FIFO of T. Storage is a power of two for bitwise modulo.
// A Ring is not safe for concurrent use.
type Ring[T any] struct {
	buf   []T
	mask  uint64
	limit uint64

	head uint64 // next write position
	tail uint64 // oldest retained value

	overwritten uint64
}

// New creates a ring holding at most capacity values. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	size := nextPow2(capacity)
	if size < 2 {
		size = 2
	}
	return &Ring[T]{
		buf:   make([]T, size),
		mask:  uint64(size - 1),
		limit: uint64(capacity),
	}
}

// Push appends v, evicting the oldest value when the ring is full.
func (r *Ring[T]) Push(v T) {
	if r.head-r.tail == r.limit {
		var zero T
		r.buf[r.tail&r.mask] = zero
		r.tail++
		r.overwritten++
	}
	r.buf[r.head&r.mask] = v
	r.head++
}

// Last returns the newest value.
func (r *Ring[T]) Last() (T, bool) {
	if r.head == r.tail {
		var zero T
		return zero, false
	}
	return r.buf[(r.head-1)&r.mask], true
}

// AppendTo appends the retained values to dst, oldest first.
func (r *Ring[T]) AppendTo(dst []T) []T {
	for i := r.tail; i < r.head; i++ {
		dst = append(dst, r.buf[i&r.mask])
	}
	return dst
}

// Len returns the number of retained values.
func (r *Ring[T]) Len() int {
	return int(r.head - r.tail)
}

// Cap returns the maximum number of retained values.
func (r *Ring[T]) Cap() int {
	return int(r.limit)
}

// Overwritten returns how many values were evicted by Push.
func (r *Ring[T]) Overwritten() uint64 {
	return r.overwritten
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
