package transport

import (
	"fmt"

	"go2tv.app/screenpump/media"
)

// Callback hands every segment to an in-process sink.
type Callback struct {
	sink Sink
}

func NewCallback(sink Sink) (*Callback, error) {
	if sink == nil {
		return nil, ErrNoSink
	}
	return &Callback{sink: sink}, nil
}

func (c *Callback) write(seg []byte) (int, error) {
	n, err := c.sink(seg)
	if err != nil {
		return n, fmt.Errorf("%w: sink: %w", ErrSendFailed, err)
	}
	return n, nil
}

func (c *Callback) WriteHeaders(segments [][]byte) (int, error) {
	return writeSegments(segments, c.write)
}

func (c *Callback) WriteAccessUnit(au media.AccessUnit) (int, error) {
	return writeSegments(au.Segments, c.write)
}

func (c *Callback) Close(int64, int64) error {
	return nil
}
