package pump

// PTSWindow keeps the two largest presentation timestamps it has seen.
type PTSWindow struct {
	largest int64
	second  int64
	n       int
}

func (w *PTSWindow) Insert(pts int64) {
	switch {
	case w.n == 0:
		w.largest = pts
	case pts > w.largest:
		w.second = w.largest
		w.largest = pts
	case w.n == 1 || pts > w.second:
		w.second = pts
	}
	w.n++
}

// Len counts every insert, not the retained values.
func (w *PTSWindow) Len() int {
	return w.n
}

// Values returns the largest and second-largest timestamps. Both are zero
// until at least two have been inserted.
func (w *PTSWindow) Values() (largest, second int64) {
	if w.n < 2 {
		return 0, 0
	}
	return w.largest, w.second
}
