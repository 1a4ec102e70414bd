package transport

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"

	"go2tv.app/screenpump/media"
)

// File writes the raw elementary stream to a local path.
type File struct {
	f *os.File
	w *bufio.Writer

	closeOnce sync.Once
	closeErr  error
}

func NewFile(path string) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}
	return &File{f: f, w: bufio.NewWriterSize(f, 256*1024)}, nil
}

func (t *File) write(seg []byte) (int, error) {
	n, err := t.w.Write(seg)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return n, nil
}

func (t *File) WriteHeaders(segments [][]byte) (int, error) {
	return writeSegments(segments, t.write)
}

func (t *File) WriteAccessUnit(au media.AccessUnit) (int, error) {
	return writeSegments(au.Segments, t.write)
}

func (t *File) Close(int64, int64) error {
	t.closeOnce.Do(func() {
		t.closeErr = errors.Join(t.w.Flush(), t.f.Close())
	})
	return t.closeErr
}
