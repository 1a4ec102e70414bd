// Package pipewire binds the parts of libpipewire a screen capture needs. The
// library is loaded with dlopen at first use, so binaries still start on
// systems without it.
package pipewire

// FrameFunc receives one frame of tightly packed 4-byte pixels. The slice is
// a private copy.
type FrameFunc func(data []byte)

// Layout is the byte order of a negotiated 4-byte pixel format.
type Layout int

const (
	LayoutUnknown Layout = iota
	// LayoutBGRx is blue, green, red, then padding or alpha.
	LayoutBGRx
	// LayoutRGBx is red, green, blue, then padding or alpha.
	LayoutRGBx
)

func (l Layout) String() string {
	switch l {
	case LayoutBGRx:
		return "bgrx"
	case LayoutRGBx:
		return "rgbx"
	default:
		return "unknown"
	}
}

// Info describes the format PipeWire settled on for a stream.
type Info struct {
	Layout Layout
	Width  int
	Height int
}

// PackRows drops the per-row padding of a buffer whose stride is wider than
// rowBytes. Buffers that are already tight, or whose geometry is unknown,
// are copied unchanged.
func PackRows(src []byte, stride, rowBytes, rows int) []byte {
	if stride <= rowBytes || rowBytes <= 0 || rows <= 0 {
		out := make([]byte, len(src))
		copy(out, src)
		return out
	}

	n := len(src) / stride
	if len(src)-n*stride >= rowBytes {
		n++
	}
	n = min(n, rows)

	out := make([]byte, n*rowBytes)
	for r := 0; r < n; r++ {
		copy(out[r*rowBytes:(r+1)*rowBytes], src[r*stride:r*stride+rowBytes])
	}
	return out
}
