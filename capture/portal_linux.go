//go:build linux

package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"

	"go2tv.app/screenpump/internal/fifo"
	"go2tv.app/screenpump/internal/pipewire"
	"go2tv.app/screenpump/media"
	"go2tv.app/screenpump/screencast"
)

type portalStream struct {
	width  int
	height int
	format media.PixelFormat
	pw     *pipewire.Stream
	queue  *frameQueue
	buf    *fifo.FIFO

	ready     chan struct{}
	readyOnce sync.Once
}

func (ps *portalStream) onFrame(b []byte) {
	ps.readyOnce.Do(func() { close(ps.ready) })
	ps.queue.Enqueue(b)
}

// applyInfo switches to the size and byte order PipeWire negotiated, which
// can differ from what the portal announced.
func (ps *portalStream) applyInfo(info pipewire.Info) {
	if info.Width > 0 && info.Height > 0 && (info.Width != ps.width || info.Height != ps.height) {
		ps.width, ps.height = info.Width, info.Height
		ps.buf.Reset()
	}
	if info.Layout == pipewire.LayoutRGBx {
		ps.format = media.FormatRGBA
	}
}

type portalGrabber struct {
	streams map[int]*portalStream
}

// Grab assembles one 4-byte frame from the PipeWire buffers. A buffer that is
// exactly one frame long discards any partial frame already buffered.
func (g *portalGrabber) Grab(ctx context.Context, d Display) (*media.Frame, error) {
	ps, ok := g.streams[d.Index]
	if !ok {
		return nil, fmt.Errorf("%w: unknown portal stream %d", ErrInvalidOptions, d.Index)
	}

	size := ps.format.FrameSize(ps.width, ps.height)
	for ps.buf.Len() < size {
		b, err := ps.queue.Next(ctx)
		if err != nil {
			return nil, err
		}
		if len(b) == size && ps.buf.Len() > 0 {
			ps.buf.Reset()
		}
		ps.buf.Push(b)
	}

	f := media.NewFrame(ps.width, ps.height, ps.format)
	ps.buf.Pop(size, f.Data)
	return f, nil
}

// OpenPortal starts an xdg-desktop-portal ScreenCast session and reads the
// shared monitors from PipeWire.
func OpenPortal(ctx context.Context, options *Options) (*ScreenSource, error) {
	o, err := normalizeOptions(options)
	if err != nil {
		return nil, err
	}

	if !pipewire.IsAvailable() {
		return nil, pipewire.ErrLibraryNotLoaded
	}

	caps, err := screencast.QueryCapabilities()
	if err != nil {
		return nil, portalErr(err)
	}
	if caps.SourceTypes&screencast.SourceTypeMonitor == 0 {
		return nil, fmt.Errorf("%w: portal backend cannot share monitors", ErrNotImplemented)
	}

	sess, err := screencast.CreateSession(ctx)
	if err != nil {
		return nil, portalErr(err)
	}

	var (
		streams []*portalStream
		pointer PointerLocator
	)
	closeAll := func() error {
		var errs []error
		for _, ps := range streams {
			ps.queue.Close()
			errs = append(errs, ps.pw.Close())
		}
		if c, ok := pointer.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
		errs = append(errs, sess.Close())
		return errors.Join(errs...)
	}

	// Close session on setup failure.
	cleanup := true
	defer func() {
		if cleanup {
			_ = closeAll()
		}
	}()

	err = sess.SelectSources(ctx, &screencast.SelectSourcesOptions{
		Types:      screencast.SourceTypeMonitor,
		CursorMode: caps.CursorMode(screencast.CursorModeEmbedded),
		Multiple:   o.FollowPointer,
	})
	if err != nil {
		return nil, portalErr(err)
	}

	shared, err := sess.Start(ctx, "")
	if err != nil {
		return nil, portalErr(err)
	}
	if len(shared) == 0 {
		return nil, ErrNoStreams
	}
	if !o.FollowPointer {
		if o.StreamIndex >= len(shared) {
			return nil, fmt.Errorf("%w: StreamIndex %d out of range (streams=%d)", ErrInvalidOptions, o.StreamIndex, len(shared))
		}
		shared = shared[o.StreamIndex : o.StreamIndex+1]
	}

	fd, err := sess.OpenPipeWireRemote()
	if err != nil {
		return nil, err
	}
	defer syscall.Close(fd)

	grabber := &portalGrabber{streams: make(map[int]*portalStream, len(shared))}
	displays := make([]Display, 0, len(shared))
	for i, st := range shared {
		if st.Size[0] <= 0 || st.Size[1] <= 0 {
			return nil, fmt.Errorf("invalid stream size %dx%d", st.Size[0], st.Size[1])
		}
		ps := &portalStream{
			width:  int(st.Size[0]),
			height: int(st.Size[1]),
			format: media.FormatBGRA,
			queue:  newFrameQueue("linux", i, defaultCallbackVideoQueue, o.Logger),
			buf:    fifo.New(media.FormatBGRA.FrameSize(int(st.Size[0]), int(st.Size[1]))),
			ready:  make(chan struct{}),
		}
		ps.pw, err = pipewire.NewStream(fd, st.NodeID, uint32(st.Size[0]), uint32(st.Size[1]), uint32(o.FrameRate), ps.onFrame)
		if err != nil {
			return nil, err
		}
		streams = append(streams, ps)
		ps.pw.Start()

		grabber.streams[i] = ps
		displays = append(displays, Display{Index: i, Bounds: st.Bounds()})
		o.Logger.Debug("portal stream", "index", i, "node", st.NodeID, "bounds", st.Bounds())
	}

	for i, ps := range streams {
		if err := waitForFirstFrame(ctx, "linux", ps.ready); err != nil {
			return nil, errors.Join(err, ps.pw.Err())
		}
		ps.applyInfo(ps.pw.Info())
		o.Logger.Debug("portal stream negotiated", "index", i, "width", ps.width, "height", ps.height, "format", ps.format)
	}

	enum, err := NewDisplayEnumerator(displays)
	if err != nil {
		return nil, err
	}
	if o.FollowPointer && len(displays) > 1 {
		if pointer, err = newPointerLocator(); err != nil {
			o.Logger.Debug("pointer lookup disabled", "err", err)
			pointer = nil
		}
	}

	width, height := o.Width, o.Height
	if width == 0 {
		width, height = streams[0].width, streams[0].height
	}
	src, err := NewScreenSource(enum, pointer, grabber, width, height, o.Logger, closeAll)
	if err != nil {
		return nil, err
	}

	cleanup = false
	return src, nil
}

func portalErr(err error) error {
	if errors.Is(err, screencast.ErrCancelled) {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return err
}
