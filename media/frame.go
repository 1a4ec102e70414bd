// Package media defines the raw frame and encoded access unit types that move
// through a capture session, plus the pixel conversions between them.
package media

import (
	"errors"
	"fmt"
)

// PixelFormat tags the byte layout of a Frame.
type PixelFormat uint8

const (
	FormatUnknown PixelFormat = iota
	// FormatRGB24 is packed red, green, blue; 3 bytes per pixel.
	FormatRGB24
	// FormatBGRA is the native 4-byte layout of most capture backends.
	FormatBGRA
	// FormatRGBA is packed red, green, blue, alpha.
	FormatRGBA
	// FormatPlanarYUV is three full-resolution planes (Y, then U, then V).
	// Chroma is not subsampled.
	FormatPlanarYUV
)

var ErrInvalidFrame = errors.New("invalid frame")

func (f PixelFormat) String() string {
	switch f {
	case FormatRGB24:
		return "rgb24"
	case FormatBGRA:
		return "bgra"
	case FormatRGBA:
		return "rgba"
	case FormatPlanarYUV:
		return "yuv444p"
	default:
		return "unknown"
	}
}

// BytesPerPixel reports the average number of bytes a pixel occupies.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGB24, FormatPlanarYUV:
		return 3
	case FormatBGRA, FormatRGBA:
		return 4
	default:
		return 0
	}
}

// FrameSize returns the exact buffer size of a width x height frame.
func (f PixelFormat) FrameSize(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	return width * height * f.BytesPerPixel()
}

// Frame is one raw image. Data is owned by whichever stage currently holds
// the frame; stages hand frames downstream and never keep them.
type Frame struct {
	Width  int
	Height int
	Format PixelFormat
	PTS    int64
	Data   []byte
}

// NewFrame allocates a zeroed frame of the exact size for format.
func NewFrame(width, height int, format PixelFormat) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Format: format,
		Data:   make([]byte, format.FrameSize(width, height)),
	}
}

// Validate checks that the buffer length matches the declared geometry.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidFrame)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidFrame, f.Width, f.Height)
	}
	want := f.Format.FrameSize(f.Width, f.Height)
	if want == 0 {
		return fmt.Errorf("%w: format %s", ErrInvalidFrame, f.Format)
	}
	if len(f.Data) != want {
		return fmt.Errorf("%w: %s %dx%d wants %d bytes, has %d", ErrInvalidFrame, f.Format, f.Width, f.Height, want, len(f.Data))
	}
	return nil
}

// AccessUnit is one encoder output event: one or more payload segments that
// share a presentation timestamp.
type AccessUnit struct {
	PTS      int64
	Segments [][]byte
}

// Len is the total payload size across all segments.
func (au AccessUnit) Len() int {
	n := 0
	for _, s := range au.Segments {
		n += len(s)
	}
	return n
}
