package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go2tv.app/screenpump/internal/fifo"
	"go2tv.app/screenpump/media"
)

const fileReadChunk = 64 * 1024

// FileSource reads raw RGB24 frames of a fixed size from a file, pipe or
// device. Reads are chunked; a FIFO assembles exactly one frame at a time.
type FileSource struct {
	r      io.Reader
	closer io.Closer
	width  int
	height int
	buf    *fifo.FIFO
	chunk  []byte

	closeOnce sync.Once
	closeErr  error
}

// OpenFile opens path ("-" for stdin) as a raw RGB24 stream.
func OpenFile(path string, options *Options) (*FileSource, error) {
	o, err := normalizeOptions(options)
	if err != nil {
		return nil, err
	}
	if o.Width == 0 {
		return nil, fmt.Errorf("%w: raw file input needs a resolution", ErrInvalidOptions)
	}

	if path == "-" {
		return NewFileSource(os.Stdin, nil, o.Width, o.Height), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	o.Logger.Debug("file source opened", "path", path, "width", o.Width, "height", o.Height)
	return NewFileSource(f, f, o.Width, o.Height), nil
}

// NewFileSource wraps r. closer may be nil.
func NewFileSource(r io.Reader, closer io.Closer, width, height int) *FileSource {
	return &FileSource{
		r:      r,
		closer: closer,
		width:  width,
		height: height,
		buf:    fifo.New(media.FormatRGB24.FrameSize(width, height)),
		chunk:  make([]byte, fileReadChunk),
	}
}

func (s *FileSource) Size() (int, int) {
	return s.width, s.height
}

// Capture returns the next frame. A trailing partial frame is discarded and
// reported as io.EOF.
func (s *FileSource) Capture(ctx context.Context) (*media.Frame, error) {
	size := media.FormatRGB24.FrameSize(s.width, s.height)
	for s.buf.Len() < size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.r.Read(s.chunk)
		if n > 0 {
			s.buf.Push(s.chunk[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if s.buf.Len() >= size {
					break
				}
				s.buf.Reset()
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read input: %w", err)
		}
	}

	f := media.NewFrame(s.width, s.height, media.FormatRGB24)
	s.buf.Pop(size, f.Data)
	return f, nil
}

func (s *FileSource) Close() error {
	s.closeOnce.Do(func() {
		if s.closer != nil {
			s.closeErr = s.closer.Close()
		}
	})
	return s.closeErr
}
