// Package pump drives one streaming session: it pulls frames from a source,
// converts them, feeds the encoder and writes every access unit to the
// output, then flushes and closes everything in order.
package pump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go2tv.app/screenpump/encoder"
	"go2tv.app/screenpump/internal/logging"
	"go2tv.app/screenpump/media"
	"go2tv.app/screenpump/transport"
)

const defaultProgressInterval = 250 * time.Millisecond

var (
	ErrStartup     = errors.New("startup failed")
	ErrEncoderOpen = errors.New("encoder open failed")
	ErrHeaders     = errors.New("writing stream headers failed")
	ErrCapture     = errors.New("capture failed")
	ErrEncode      = errors.New("encode failed")
	ErrSend        = errors.New("output failed")
	ErrAborted     = errors.New("aborted")
)

// ExitCode maps a Run error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrEncoderOpen):
		return 2
	case errors.Is(err, ErrHeaders):
		return 3
	case errors.Is(err, ErrCapture), errors.Is(err, ErrEncode), errors.Is(err, ErrSend), errors.Is(err, ErrAborted):
		return 4
	default:
		return 1
	}
}

type State int

const (
	StateStarting State = iota
	StateRunning
	StateFlushing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateFlushing:
		return "flushing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Source is where frames come from. io.EOF from Capture ends the input.
type Source interface {
	Capture(ctx context.Context) (*media.Frame, error)
	Close() error
}

type Options struct {
	Source        Source
	Encoder       encoder.Encoder
	EncoderConfig encoder.Config

	// Transport wins over Output when both are set.
	Transport transport.Transport
	Output    string
	Sink      transport.Sink

	// Frames stops after that many input frames; 0 runs until the input
	// ends. Seek discards that many frames first.
	Frames    int
	Seek      int
	Interlace bool

	// Killed is polled once per iteration alongside the context.
	Killed *atomic.Bool

	ProgressInterval time.Duration
	Logger           *slog.Logger
}

// Pump runs a single session. It owns the source, encoder and transport once
// Run is called and closes all three before Run returns.
type Pump struct {
	opts Options
	log  *slog.Logger

	state  atomic.Int32
	window PTSWindow
	stats  Stats

	tr transport.Transport

	started      time.Time
	lastProgress time.Time

	runOnce sync.Once
}

func New(opts Options) (*Pump, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("%w: no source", ErrStartup)
	}
	if opts.Encoder == nil {
		return nil, fmt.Errorf("%w: no encoder", ErrStartup)
	}
	if opts.Transport == nil && opts.Output == "" {
		return nil, fmt.Errorf("%w: no output", ErrStartup)
	}
	if opts.Frames < 0 || opts.Seek < 0 {
		return nil, fmt.Errorf("%w: negative frame count", ErrStartup)
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaultProgressInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Pump{opts: opts, log: opts.Logger.With("component", "pump")}, nil
}

func (p *Pump) State() State {
	return State(p.state.Load())
}

func (p *Pump) setState(s State) {
	p.state.Store(int32(s))
	p.log.Debug("state", "state", s)
}

// Window returns the timestamps handed to the transport on close.
func (p *Pump) Window() (largest, second int64) {
	return p.window.Values()
}

// Run executes the session once. Later calls return ErrStartup.
func (p *Pump) Run(ctx context.Context) (Stats, error) {
	err := fmt.Errorf("%w: pump already ran", ErrStartup)
	p.runOnce.Do(func() {
		err = p.run(ctx)
	})
	return p.stats, err
}

func (p *Pump) run(ctx context.Context) (err error) {
	p.started = time.Now()
	p.lastProgress = p.started
	p.setState(StateStarting)

	defer func() {
		err = errors.Join(err, p.close())
		p.stats.Elapsed = time.Since(p.started)
		p.setState(StateClosed)
		largest, second := p.window.Values()
		p.log.Info("session finished", "stats", p.stats, "largest_pts", largest, "second_pts", second)
	}()

	if err := p.start(ctx); err != nil {
		return err
	}

	p.setState(StateRunning)
	flush, err := p.loop(ctx)
	if !flush {
		return err
	}

	p.setState(StateFlushing)
	return p.flush(ctx)
}

func (p *Pump) start(ctx context.Context) error {
	tr := p.opts.Transport
	if tr == nil {
		var err error
		tr, err = transport.Open(ctx, p.opts.Output, transport.Options{Sink: p.opts.Sink, Logger: p.opts.Logger})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStartup, err)
		}
	}
	p.tr = tr

	cfg := p.opts.EncoderConfig
	if p.opts.Interlace {
		cfg.Height /= 2
	}
	if cfg.Logger == nil {
		cfg.Logger = p.opts.Logger
	}
	if err := p.opts.Encoder.Open(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrEncoderOpen, err)
	}

	headers, err := p.opts.Encoder.Headers()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHeaders, err)
	}
	n, err := p.tr.WriteHeaders(headers)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHeaders, err)
	}
	p.stats.Bytes += int64(n)
	return nil
}

func (p *Pump) cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return p.opts.Killed != nil && p.opts.Killed.Load()
}

// loop runs until the input ends or the session stops. flush reports whether
// the encoder should be drained.
func (p *Pump) loop(ctx context.Context) (flush bool, err error) {
	for {
		if p.cancelled(ctx) {
			return false, p.abort()
		}
		if p.opts.Frames > 0 && p.stats.FramesIn >= p.opts.Frames {
			return true, nil
		}

		f, err := p.opts.Source.Capture(ctx)
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			if p.cancelled(ctx) {
				return false, p.abort()
			}
			return false, fmt.Errorf("%w: input frame %d: %w", ErrCapture, p.stats.FramesIn, err)
		}

		if p.stats.Skipped < p.opts.Seek {
			p.stats.Skipped++
			continue
		}

		planar, err := toPlanar(f)
		if err != nil {
			return false, fmt.Errorf("%w: input frame %d: %w", ErrCapture, p.stats.FramesIn, err)
		}

		n := int64(p.stats.FramesIn)
		p.stats.FramesIn++

		pictures := []*media.Frame{planar}
		if p.opts.Interlace {
			planar.PTS = 2 * n
			top, bottom := media.SplitFields(planar)
			pictures = []*media.Frame{top, bottom}
		} else {
			planar.PTS = n
		}

		for _, pic := range pictures {
			units, err := p.opts.Encoder.Encode(pic)
			if err != nil {
				return false, fmt.Errorf("%w: input frame %d: %w", ErrEncode, n, err)
			}
			if err := p.write(units); err != nil {
				return false, err
			}
		}
		p.progress()
	}
}

// flush drains the encoder until it returns nothing. Cancellation is checked
// before every call, as in the main loop.
func (p *Pump) flush(ctx context.Context) error {
	for {
		if p.cancelled(ctx) {
			return p.abort()
		}
		units, err := p.opts.Encoder.Flush()
		if err != nil {
			return fmt.Errorf("%w: flush: %w", ErrEncode, err)
		}
		if len(units) == 0 {
			return nil
		}
		if err := p.write(units); err != nil {
			return err
		}
	}
}

func (p *Pump) write(units []media.AccessUnit) error {
	for _, au := range units {
		n, err := p.tr.WriteAccessUnit(au)
		p.stats.Bytes += int64(n)
		if err != nil {
			return fmt.Errorf("%w: output frame %d: %w", ErrSend, p.stats.FramesOut, err)
		}
		p.stats.FramesOut++
		p.window.Insert(au.PTS)
	}
	return nil
}

func (p *Pump) abort() error {
	p.stats.Aborted = true
	p.log.Info(fmt.Sprintf("aborted at input frame %d, output frame %d", p.stats.FramesIn, p.stats.FramesOut))
	return ErrAborted
}

func (p *Pump) progress() {
	now := time.Now()
	if now.Sub(p.lastProgress) < p.opts.ProgressInterval {
		return
	}
	p.lastProgress = now
	s := p.stats
	s.Elapsed = now.Sub(p.started)
	p.log.Debug("progress", "stats", s)
}

// close hands the final timestamps to the transport and releases the
// encoder and source, in that order.
func (p *Pump) close() error {
	var errs []error
	if p.tr != nil {
		largest, second := p.window.Values()
		if err := p.tr.Close(largest, second); err != nil {
			errs = append(errs, fmt.Errorf("%w: close: %w", ErrSend, err))
		}
	}
	if err := p.opts.Encoder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close encoder: %w", err))
	}
	if err := p.opts.Source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close source: %w", err))
	}
	return errors.Join(errs...)
}

func toPlanar(f *media.Frame) (*media.Frame, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	switch f.Format {
	case media.FormatPlanarYUV:
		return f, nil
	case media.FormatRGB24:
		return media.ToPlanar(f), nil
	case media.FormatBGRA, media.FormatRGBA:
		rgb := media.NewFrame(f.Width, f.Height, media.FormatRGB24)
		rgb.PTS = f.PTS
		if f.Format == media.FormatBGRA {
			media.BGRAToRGB(rgb.Data, f.Data)
		} else {
			media.RGBAToRGB(rgb.Data, f.Data)
		}
		return media.ToPlanar(rgb), nil
	default:
		return nil, fmt.Errorf("%w: format %s", media.ErrInvalidFrame, f.Format)
	}
}
