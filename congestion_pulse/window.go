package congestion_pulse

// Window is a bounded FIFO ring. Pushing into a full window evicts the
// oldest element. The backing array is allocated once.
type Window[T any] struct {
	buf   []T
	start int
	size  int
}

// NewWindow creates a window holding at most capacity elements.
func NewWindow[T any](capacity int) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[T]{buf: make([]T, capacity)}
}

// Cap returns the capacity.
func (w *Window[T]) Cap() int {
	return len(w.buf)
}

// Len returns the number of stored elements.
func (w *Window[T]) Len() int {
	return w.size
}

// Full reports whether the next Push evicts.
func (w *Window[T]) Full() bool {
	return w.size == len(w.buf)
}

// Push appends v, evicting the oldest element if the window is full.
func (w *Window[T]) Push(v T) {
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = v
		w.size++
		return
	}
	w.buf[w.start] = v
	w.start = (w.start + 1) % len(w.buf)
}

// At returns the i-th element, oldest first.
func (w *Window[T]) At(i int) T {
	if i < 0 || i >= w.size {
		panic("window index out of range")
	}
	return w.buf[(w.start+i)%len(w.buf)]
}

// Last returns the newest element.
func (w *Window[T]) Last() (T, bool) {
	if w.size == 0 {
		var zero T
		return zero, false
	}
	return w.At(w.size - 1), true
}

// Values copies the elements into a new slice, oldest first.
func (w *Window[T]) Values() []T {
	values := make([]T, w.size)
	for i := range values {
		values[i] = w.At(i)
	}
	return values
}

// Reset drops every element.
func (w *Window[T]) Reset() {
	w.start = 0
	w.size = 0
}
