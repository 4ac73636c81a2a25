// Package window provides the bounded raw-sample history kept per stream.
package window

// Ring is a fixed-capacity FIFO buffer of float64 samples. Appending to a
// full ring evicts the oldest sample. The capacity never changes after
// construction.
type Ring struct {
	buf  []float64
	head int // index of the oldest sample
	n    int
}

// New creates a ring holding at most capacity samples. Capacities below one
// are raised to one.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float64, capacity)}
}

// Append adds a sample, evicting the oldest when full.
func (r *Ring) Append(v float64) {
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

// Len returns the number of samples currently held.
func (r *Ring) Len() int { return r.n }

// Cap returns the fixed capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Values returns the held samples oldest first. The returned slice is a
// copy; mutating it does not affect the ring.
func (r *Ring) Values() []float64 {
	out := make([]float64, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Last returns the most recently appended sample, or false when empty.
func (r *Ring) Last() (float64, bool) {
	if r.n == 0 {
		return 0, false
	}
	return r.buf[(r.head+r.n-1)%len(r.buf)], true
}
