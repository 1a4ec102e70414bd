package capture

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"go2tv.app/screenpump/media"
)

// toRGB resamples a 4-byte frame to width x height and packs it into RGB24.
// The scaler treats every channel the same way, so BGRA input is scaled as
// if it were RGBA and only reordered at the end.
func toRGB(src *media.Frame, width, height int) (*media.Frame, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if src.Format != media.FormatBGRA && src.Format != media.FormatRGBA {
		return nil, fmt.Errorf("%w: cannot scale %s", media.ErrInvalidFrame, src.Format)
	}

	pix := src.Data
	if src.Width != width || src.Height != height {
		in := &image.RGBA{
			Pix:    src.Data,
			Stride: src.Width * 4,
			Rect:   image.Rect(0, 0, src.Width, src.Height),
		}
		out := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.ApproxBiLinear.Scale(out, out.Bounds(), in, in.Bounds(), draw.Src, nil)
		pix = out.Pix
	}

	dst := media.NewFrame(width, height, media.FormatRGB24)
	dst.PTS = src.PTS
	if src.Format == media.FormatBGRA {
		media.BGRAToRGB(dst.Data, pix)
	} else {
		media.RGBAToRGB(dst.Data, pix)
	}
	return dst, nil
}

// imageToRGB draws any image into a width x height RGB24 frame.
func imageToRGB(img image.Image, width, height int) *media.Frame {
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	if img.Bounds().Dx() == width && img.Bounds().Dy() == height {
		draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(out, out.Bounds(), img, img.Bounds(), draw.Src, nil)
	}
	dst := media.NewFrame(width, height, media.FormatRGB24)
	media.RGBAToRGB(dst.Data, out.Pix)
	return dst
}

// rgbaFrame copies an *image.RGBA into a tightly packed RGBA frame.
func rgbaFrame(img *image.RGBA) *media.Frame {
	b := img.Bounds()
	f := media.NewFrame(b.Dx(), b.Dy(), media.FormatRGBA)
	rowBytes := b.Dx() * 4
	for y := 0; y < b.Dy(); y++ {
		start := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(f.Data[y*rowBytes:(y+1)*rowBytes], img.Pix[start:start+rowBytes])
	}
	return f
}
