package capture

import (
	"context"
	"fmt"

	"github.com/kbinani/screenshot"

	"go2tv.app/screenpump/media"
)

type screenshotGrabber struct{}

func (screenshotGrabber) Grab(_ context.Context, d Display) (*media.Frame, error) {
	img, err := screenshot.CaptureRect(d.Bounds)
	if err != nil {
		return nil, err
	}
	return rgbaFrame(img), nil
}

func activeDisplays() ([]Display, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, ErrNoDisplays
	}
	displays := make([]Display, 0, n)
	for i := 0; i < n; i++ {
		b := screenshot.GetDisplayBounds(i)
		if b.Empty() {
			continue
		}
		displays = append(displays, Display{Index: i, Bounds: b})
	}
	return displays, nil
}

// OpenScreenshot captures the display under the pointer through the
// platform screenshot API.
func OpenScreenshot(options *Options) (*ScreenSource, error) {
	o, err := normalizeOptions(options)
	if err != nil {
		return nil, err
	}

	displays, err := activeDisplays()
	if err != nil {
		return nil, err
	}
	enum, err := NewDisplayEnumerator(displays)
	if err != nil {
		return nil, err
	}

	pointer, err := newPointerLocator()
	if err != nil {
		o.Logger.Debug("pointer lookup disabled", "err", err)
		pointer = nil
	}

	var closeFn func() error
	if c, ok := pointer.(interface{ Close() error }); ok {
		closeFn = c.Close
	}

	src, err := NewScreenSource(enum, pointer, screenshotGrabber{}, o.Width, o.Height, o.Logger, closeFn)
	if err != nil {
		if closeFn != nil {
			_ = closeFn()
		}
		return nil, fmt.Errorf("screenshot source: %w", err)
	}
	o.Logger.Debug("screenshot source opened", "displays", len(displays), "width", src.width, "height", src.height)
	return src, nil
}
