// Package capture produces packed RGB24 frames from the screen, a camera, or
// a raw file. Every source hands out frames of one fixed size for its whole
// lifetime.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go2tv.app/screenpump/internal/logging"
	"go2tv.app/screenpump/media"
)

const (
	// DefaultWidth and DefaultHeight are the output size used when none is
	// configured.
	DefaultWidth  = 600
	DefaultHeight = 700

	defaultFrameRate         = 30
	defaultFirstFrameTimeout = 8 * time.Second
)

var (
	ErrNotImplemented     = errors.New("screen capture backend is not implemented on this platform")
	ErrCancelled          = errors.New("screen capture request was cancelled")
	ErrNoStreams          = errors.New("screen capture returned no streams")
	ErrInvalidOptions     = errors.New("invalid screen capture options")
	ErrNoDisplays         = errors.New("no displays available")
	ErrPointerUnavailable = errors.New("pointer position unavailable")
)

// Options configures a capture session.
type Options struct {
	// Width and Height are the output frame size. Zero picks the backend
	// default: the input size for files and cameras, DefaultWidth x
	// DefaultHeight for screens.
	Width  int
	Height int

	FrameRate int

	// StreamIndex selects the stream from the portal chooser result.
	// Default is 0.
	StreamIndex int

	// FollowPointer makes the portal backend open every shared stream and
	// capture the one under the pointer, like the screenshot backend.
	FollowPointer bool

	Logger *slog.Logger
}

// Source yields RGB24 frames. Capture blocks until a frame is ready and
// returns io.EOF once a finite input is exhausted.
type Source interface {
	Capture(ctx context.Context) (*media.Frame, error)
	Size() (width, height int)
	Close() error
}

func normalizeOptions(options *Options) (*Options, error) {
	o := Options{}
	if options != nil {
		o = *options
	}
	if o.StreamIndex < 0 {
		return nil, fmt.Errorf("%w: StreamIndex must be >= 0", ErrInvalidOptions)
	}
	if o.Width < 0 || o.Height < 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidOptions, o.Width, o.Height)
	}
	if (o.Width == 0) != (o.Height == 0) {
		return nil, fmt.Errorf("%w: width and height must both be set", ErrInvalidOptions)
	}
	if o.FrameRate <= 0 {
		o.FrameRate = defaultFrameRate
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return &o, nil
}

// Open picks a backend by input name: "screen" (or empty) for the screenshot
// backend, "portal" for the xdg-desktop-portal ScreenCast session, "camera"
// for the first video device, anything else is a raw RGB24 file path.
func Open(ctx context.Context, input string, options *Options) (Source, error) {
	o, err := normalizeOptions(options)
	if err != nil {
		return nil, err
	}

	var src Source
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "screen":
		s, openErr := OpenScreenshot(o)
		src, err = s, openErr
	case "portal":
		s, openErr := OpenPortal(ctx, o)
		src, err = s, openErr
	case "camera":
		s, openErr := OpenCamera(o)
		src, err = s, openErr
	default:
		s, openErr := OpenFile(input, o)
		src, err = s, openErr
	}
	if err != nil {
		return nil, err
	}
	w, h := src.Size()
	o.Logger.Info("capture source ready", "input", input, "width", w, "height", h)
	return src, nil
}

func waitForFirstFrame(ctx context.Context, platform string, ready <-chan struct{}) error {
	timer := time.NewTimer(defaultFirstFrameTimeout)
	defer timer.Stop()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%s capture timed out waiting for first frame", platform)
	}
}
