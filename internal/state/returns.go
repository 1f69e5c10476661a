package state

// ReturnWindow keeps a bounded rolling history of simple returns computed
// from successive value observations.
type ReturnWindow struct {
	buf   []float64
	head  int
	count int
	last  float64
	seen  bool
}

// NewReturnWindow allocates a window holding up to size return samples.
func NewReturnWindow(size int) *ReturnWindow {
	if size <= 0 {
		size = 1
	}
	return &ReturnWindow{buf: make([]float64, size)}
}

// Observe records a new value observation. The first observation primes the
// window; later ones append (value/last - 1).
func (w *ReturnWindow) Observe(value float64) {
	if !w.seen {
		w.last = value
		w.seen = true
		return
	}
	if w.last == 0 {
		w.last = value
		return
	}
	r := value/w.last - 1
	w.last = value
	w.buf[w.head] = r
	w.head = (w.head + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// Samples returns the recorded returns in chronological order.
func (w *ReturnWindow) Samples() []float64 {
	out := make([]float64, 0, w.count)
	start := w.head - w.count
	for i := 0; i < w.count; i++ {
		idx := start + i
		if idx < 0 {
			idx += len(w.buf)
		}
		out = append(out, w.buf[idx])
	}
	return out
}

// Count returns the number of recorded returns.
func (w *ReturnWindow) Count() int {
	return w.count
}
