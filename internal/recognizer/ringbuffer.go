package recognizer

// ringBuffer is a bounded FIFO of float64 samples, used as the
// recognizer's sliding audio buffer (§4.7). New chunks append; oldest
// samples are evicted once capacity is exceeded. It is owned by exactly
// one recognizer instance and is never shared (§9).
type ringBuffer struct {
	data []float64
	cap  int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{data: make([]float64, 0, capacity), cap: capacity}
}

// Push appends chunk, evicting the oldest samples if the buffer would
// exceed its capacity.
func (r *ringBuffer) Push(chunk []float64) {
	r.data = append(r.data, chunk...)
	if len(r.data) > r.cap {
		overflow := len(r.data) - r.cap
		r.data = r.data[overflow:]
	}
}

// Len reports the number of samples currently held.
func (r *ringBuffer) Len() int {
	return len(r.data)
}

// Last returns a copy of the most recent n samples, or all available
// samples if fewer than n are held.
func (r *ringBuffer) Last(n int) []float64 {
	if n > len(r.data) {
		n = len(r.data)
	}
	out := make([]float64, n)
	copy(out, r.data[len(r.data)-n:])
	return out
}

// Reset empties the buffer.
func (r *ringBuffer) Reset() {
	r.data = r.data[:0]
}
