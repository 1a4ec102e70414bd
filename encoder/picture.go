package encoder

import "strings"

// ptsQueue hands out the timestamps of submitted pictures in submission
// order. Backends that never reorder can stamp each output with the oldest
// pending value.
type ptsQueue struct {
	pending []int64
	last    int64
}

func (q *ptsQueue) push(pts int64) {
	q.pending = append(q.pending, pts)
}

// next pops the oldest pending timestamp. With nothing pending it continues
// one past the last value handed out.
func (q *ptsQueue) next() int64 {
	pts := q.last + 1
	if len(q.pending) > 0 {
		pts = q.pending[0]
		q.pending = q.pending[1:]
	}
	q.last = pts
	return pts
}

func (q *ptsQueue) len() int {
	return len(q.pending)
}

// pictureWriter keeps every Write as a separate payload. libx264 returns one
// contiguous buffer per encoded picture, which the binding writes in one call.
type pictureWriter struct {
	pics [][]byte
}

func (w *pictureWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		w.pics = append(w.pics, append([]byte(nil), p...))
	}
	return len(p), nil
}

func (w *pictureWriter) take() [][]byte {
	pics := w.pics
	w.pics = nil
	return pics
}

// withZeroLatency adds x264's zerolatency tune to a tune list. It turns off
// lookahead and B-frames, so every picture comes out of Encode in input
// order. A psy tune such as film is kept alongside it.
func withZeroLatency(tune string) string {
	var tunes []string
	for _, t := range strings.Split(tune, ",") {
		t = strings.TrimSpace(t)
		if t == "zerolatency" {
			return tune
		}
		if t != "" {
			tunes = append(tunes, t)
		}
	}
	return strings.Join(append(tunes, "zerolatency"), ",")
}
