// Package fifo provides an unbounded byte queue with exact-count reads.
package fifo

import "fmt"

// compactThreshold is the consumed prefix size above which Push reclaims the
// space before growing.
const compactThreshold = 64 * 1024

// FIFO holds appended bytes until they are popped in order. It is not safe
// for concurrent use.
type FIFO struct {
	buf  []byte
	head int
}

func New(capacity int) *FIFO {
	if capacity < 0 {
		capacity = 0
	}
	return &FIFO{buf: make([]byte, 0, capacity)}
}

// Len is the number of bytes appended and not yet popped.
func (f *FIFO) Len() int {
	return len(f.buf) - f.head
}

// Push appends a copy of p.
func (f *FIFO) Push(p []byte) {
	if len(p) == 0 {
		return
	}
	if f.head > 0 && (f.head >= compactThreshold || f.head == len(f.buf)) && len(f.buf)+len(p) > cap(f.buf) {
		n := copy(f.buf, f.buf[f.head:])
		f.buf = f.buf[:n]
		f.head = 0
	}
	f.buf = append(f.buf, p...)
}

// Pop copies the first n bytes into out and removes them. Asking for more
// than Len bytes, or passing an out shorter than n, panics.
func (f *FIFO) Pop(n int, out []byte) {
	if n < 0 || n > f.Len() {
		panic(fmt.Sprintf("fifo: pop %d bytes with %d buffered", n, f.Len()))
	}
	if len(out) < n {
		panic(fmt.Sprintf("fifo: pop %d bytes into %d byte buffer", n, len(out)))
	}
	copy(out, f.buf[f.head:f.head+n])
	f.head += n
	if f.head == len(f.buf) {
		f.buf = f.buf[:0]
		f.head = 0
	}
}

// Next pops n bytes into a freshly allocated slice.
func (f *FIFO) Next(n int) []byte {
	out := make([]byte, n)
	f.Pop(n, out)
	return out
}

// Peek returns the unread bytes without consuming them. The slice is only
// valid until the next Push or Pop.
func (f *FIFO) Peek() []byte {
	return f.buf[f.head:]
}

// Reset drops all buffered bytes and keeps the allocation.
func (f *FIFO) Reset() {
	f.buf = f.buf[:0]
	f.head = 0
}
