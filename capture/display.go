package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go2tv.app/screenpump/internal/logging"
	"go2tv.app/screenpump/media"
)

// Display is one monitor. Index is the backend's own identifier, Bounds its
// rectangle in the shared desktop coordinate space.
type Display struct {
	Index  int
	Bounds image.Rectangle
}

// DisplayEnumerator holds the display list in selection order: origin x,
// then origin y. The list does not change after construction.
type DisplayEnumerator struct {
	displays []Display
}

func NewDisplayEnumerator(displays []Display) (*DisplayEnumerator, error) {
	if len(displays) == 0 {
		return nil, ErrNoDisplays
	}
	sorted := make([]Display, len(displays))
	copy(sorted, displays)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Bounds.Min, sorted[j].Bounds.Min
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
	return &DisplayEnumerator{displays: sorted}, nil
}

func (e *DisplayEnumerator) Displays() []Display {
	out := make([]Display, len(e.displays))
	copy(out, e.displays)
	return out
}

// Select returns the first display containing p, or the first display when
// none does.
func (e *DisplayEnumerator) Select(p image.Point) Display {
	for _, d := range e.displays {
		if p.In(d.Bounds) {
			return d
		}
	}
	return e.displays[0]
}

// First is the display used when the pointer cannot be located.
func (e *DisplayEnumerator) First() Display {
	return e.displays[0]
}

// PointerLocator reports the pointer position in desktop coordinates.
type PointerLocator interface {
	Pointer() (image.Point, error)
}

// Grabber returns one native-size image of a display, as BGRA or RGBA.
type Grabber interface {
	Grab(ctx context.Context, d Display) (*media.Frame, error)
}

type noPointer struct{}

func (noPointer) Pointer() (image.Point, error) {
	return image.Point{}, ErrPointerUnavailable
}

// ScreenSource follows the pointer across displays and scales whatever it
// grabs to one fixed output size.
type ScreenSource struct {
	enum    *DisplayEnumerator
	pointer PointerLocator
	grabber Grabber
	width   int
	height  int
	log     *slog.Logger

	closeFn   func() error
	closeOnce sync.Once
	closeErr  error

	lastPointerLog atomic.Int64
}

// NewScreenSource builds a source over an existing display list. A nil
// pointer always selects the first display. closeFn, if set, runs once on
// Close.
func NewScreenSource(enum *DisplayEnumerator, pointer PointerLocator, grabber Grabber, width, height int, log *slog.Logger, closeFn func() error) (*ScreenSource, error) {
	if enum == nil {
		return nil, ErrNoDisplays
	}
	if grabber == nil {
		return nil, fmt.Errorf("%w: nil grabber", ErrInvalidOptions)
	}
	if width == 0 && height == 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: output size %dx%d", ErrInvalidOptions, width, height)
	}
	if pointer == nil {
		pointer = noPointer{}
	}
	if log == nil {
		log = logging.Discard()
	}
	return &ScreenSource{
		enum:    enum,
		pointer: pointer,
		grabber: grabber,
		width:   width,
		height:  height,
		log:     log,
		closeFn: closeFn,
	}, nil
}

func (s *ScreenSource) Size() (int, int) {
	return s.width, s.height
}

// Display picks the display to capture for this call.
func (s *ScreenSource) Display() Display {
	p, err := s.pointer.Pointer()
	if err != nil {
		if logging.ShouldLog(&s.lastPointerLog, 10*time.Second) {
			s.log.Debug("pointer lookup failed, using first display", "err", err)
		}
		return s.enum.First()
	}
	return s.enum.Select(p)
}

func (s *ScreenSource) Capture(ctx context.Context) (*media.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d := s.Display()
	raw, err := s.grabber.Grab(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("grab display %d: %w", d.Index, err)
	}
	return toRGB(raw, s.width, s.height)
}

func (s *ScreenSource) Close() error {
	s.closeOnce.Do(func() {
		if s.closeFn != nil {
			s.closeErr = s.closeFn()
		}
	})
	return s.closeErr
}
