package agent

// Ring is a fixed-capacity buffer that overwrites its oldest element once
// full. It is not safe for concurrent use; Memory guards it.
type Ring[T any] struct {
	buf   []T
	start int
	size  int
}

// NewRing returns an empty ring. A capacity below one is raised to one.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v and reports whether the oldest element was dropped for it.
func (r *Ring[T]) Push(v T) bool {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return false
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
	return true
}

func (r *Ring[T]) Len() int { return r.size }

func (r *Ring[T]) Cap() int { return len(r.buf) }

// Items returns a copy of the contents, oldest first.
func (r *Ring[T]) Items() []T {
	return r.Last(r.size)
}

// Last returns a copy of the n most recent elements, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	offset := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+offset+i)%len(r.buf)]
	}
	return out
}

// Newest returns the most recently pushed element.
func (r *Ring[T]) Newest() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.buf[(r.start+r.size-1)%len(r.buf)], true
}

// Reset empties the ring and releases references to old elements.
func (r *Ring[T]) Reset() {
	clear(r.buf)
	r.start, r.size = 0, 0
}
