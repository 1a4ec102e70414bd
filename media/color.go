package media

import (
	"fmt"
	"image"
)

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ConvertRGBToPlanar writes three full-size planes (Y, U, V) of src into dst
// using BT.601 integer coefficients. It panics when either buffer does not
// match width x height exactly.
func ConvertRGBToPlanar(dst, src []byte, width, height int) {
	n := width * height
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("media: invalid planar conversion size %dx%d", width, height))
	}
	if len(src) != n*3 {
		panic(fmt.Sprintf("media: rgb24 source is %d bytes, want %d", len(src), n*3))
	}
	if len(dst) != n*3 {
		panic(fmt.Sprintf("media: planar destination is %d bytes, want %d", len(dst), n*3))
	}

	yPlane := dst[:n]
	uPlane := dst[n : 2*n]
	vPlane := dst[2*n:]

	for i := 0; i < n; i++ {
		r := int(src[i*3])
		g := int(src[i*3+1])
		b := int(src[i*3+2])

		y := ((66*r + 129*g + 25*b + 128) >> 8) + 16
		u := ((-38*r - 74*g + 112*b + 128) >> 8) + 128
		v := ((112*r - 94*g - 18*b + 128) >> 8) + 128

		yPlane[i] = byte(clamp(y, 0, 255))
		uPlane[i] = byte(clamp(u, 0, 255))
		vPlane[i] = byte(clamp(v, 0, 255))
	}
}

// ToPlanar converts an RGB24 frame into a new planar frame carrying the same
// timestamp. Any other input format is a programming error.
func ToPlanar(f *Frame) *Frame {
	if f.Format != FormatRGB24 {
		panic(fmt.Sprintf("media: ToPlanar wants rgb24, got %s", f.Format))
	}
	out := NewFrame(f.Width, f.Height, FormatPlanarYUV)
	out.PTS = f.PTS
	ConvertRGBToPlanar(out.Data, f.Data, f.Width, f.Height)
	return out
}

// BGRAToRGB packs 4-byte blue, green, red, alpha pixels into RGB24. Alpha is
// dropped. dst must hold exactly 3 bytes per source pixel.
func BGRAToRGB(dst, src []byte) {
	pixels := checkPacked(dst, src)
	for i := 0; i < pixels; i++ {
		dst[i*3] = src[i*4+2]
		dst[i*3+1] = src[i*4+1]
		dst[i*3+2] = src[i*4]
	}
}

// RGBAToRGB drops the alpha byte of every pixel.
func RGBAToRGB(dst, src []byte) {
	pixels := checkPacked(dst, src)
	for i := 0; i < pixels; i++ {
		dst[i*3] = src[i*4]
		dst[i*3+1] = src[i*4+1]
		dst[i*3+2] = src[i*4+2]
	}
}

func checkPacked(dst, src []byte) int {
	if len(src)%4 != 0 {
		panic(fmt.Sprintf("media: 4-byte source length %d is not a whole number of pixels", len(src)))
	}
	pixels := len(src) / 4
	if len(dst) != pixels*3 {
		panic(fmt.Sprintf("media: rgb24 destination is %d bytes, want %d", len(dst), pixels*3))
	}
	return pixels
}

// PlanarToYCbCr exposes a planar frame as a 4:4:4 image without copying.
func PlanarToYCbCr(f *Frame) (*image.YCbCr, error) {
	if f.Format != FormatPlanarYUV {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrInvalidFrame, FormatPlanarYUV, f.Format)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	n := f.Width * f.Height
	return &image.YCbCr{
		Y:              f.Data[:n],
		Cb:             f.Data[n : 2*n],
		Cr:             f.Data[2*n:],
		YStride:        f.Width,
		CStride:        f.Width,
		SubsampleRatio: image.YCbCrSubsampleRatio444,
		Rect:           image.Rect(0, 0, f.Width, f.Height),
	}, nil
}
