package fee

// Window is a fixed-capacity sliding window in insertion order. It is not
// safe for concurrent use.
type Window[T any] struct {
	capacity int
	items    []T
}

func NewWindow[T any](capacity int) *Window[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window[T]{capacity: capacity, items: make([]T, 0, capacity)}
}

// Push appends v, dropping the oldest sample once the window is full.
func (w *Window[T]) Push(v T) {
	if len(w.items) == w.capacity {
		copy(w.items, w.items[1:])
		w.items = w.items[:len(w.items)-1]
	}
	w.items = append(w.items, v)
}

// Replace discards the current samples and keeps the newest capacity
// values of vs.
func (w *Window[T]) Replace(vs []T) {
	if len(vs) > w.capacity {
		vs = vs[len(vs)-w.capacity:]
	}
	w.items = append(w.items[:0], vs...)
}

// Values returns a copy of the samples, oldest first.
func (w *Window[T]) Values() []T {
	out := make([]T, len(w.items))
	copy(out, w.items)
	return out
}

func (w *Window[T]) Len() int { return len(w.items) }

func (w *Window[T]) Cap() int { return w.capacity }
