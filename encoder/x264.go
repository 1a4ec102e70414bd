//go:build x264

package encoder

import (
	"fmt"
	"log/slog"

	x264 "github.com/gen2brain/x264-go"

	"go2tv.app/screenpump/media"
)

func init() {
	Register("x264", func() Encoder { return &X264{} })
}

// X264 encodes H.264 in-process through libx264. The zerolatency tune is
// always on, so pictures come out in input order and each one becomes an
// access unit stamped with the timestamp of the matching input.
type X264 struct {
	cfg     Config
	log     *slog.Logger
	out     *pictureWriter
	enc     *x264.Encoder
	headers [][]byte
	pts     ptsQueue
	flushed bool
	closed  bool
}

func (e *X264) Open(cfg Config) error {
	if e.enc != nil {
		return fmt.Errorf("%w: x264 encoder opened twice", ErrInvalidConfig)
	}
	cfg, err := cfg.normalize()
	if err != nil {
		return err
	}
	if cfg.Width%2 != 0 || cfg.Height%2 != 0 {
		return fmt.Errorf("%w: x264 needs even dimensions, got %dx%d", ErrInvalidConfig, cfg.Width, cfg.Height)
	}
	e.log = cfg.Logger.With("component", "encoder", "backend", "x264")
	if cfg.Codec != CodecH264 {
		e.log.Info("x264 only produces h264", "requested", cfg.Codec)
		cfg.Codec = CodecH264
	}
	if tune := withZeroLatency(cfg.Tune); tune != cfg.Tune {
		e.log.Debug("x264 tune extended", "requested", cfg.Tune, "tune", tune)
		cfg.Tune = tune
	}
	// x264-go has no rate factor option; the preset's default CRF applies.
	e.log.Info("x264 ignores quality", "quality", cfg.Quality, "preset", cfg.Preset)
	e.cfg = cfg

	e.out = &pictureWriter{}
	enc, err := x264.NewEncoder(e.out, &x264.Options{
		Width:     cfg.Width,
		Height:    cfg.Height,
		FrameRate: cfg.FPS,
		Tune:      cfg.Tune,
		Preset:    cfg.Preset,
		Profile:   "high",
		LogLevel:  x264.LogWarning,
	})
	if err != nil {
		return fmt.Errorf("x264 open: %w", err)
	}
	e.enc = enc
	for _, h := range e.out.take() {
		e.headers = append(e.headers, SplitNALUnits(h)...)
	}
	return nil
}

func (e *X264) Headers() ([][]byte, error) {
	if e.enc == nil {
		return nil, ErrNotOpen
	}
	return e.headers, nil
}

func (e *X264) Encode(f *media.Frame) ([]media.AccessUnit, error) {
	if e.enc == nil {
		return nil, ErrNotOpen
	}
	if e.flushed {
		return nil, ErrFlushed
	}
	if err := checkFrame(e.cfg, f); err != nil {
		return nil, err
	}
	img, err := media.PlanarToYCbCr(f)
	if err != nil {
		return nil, err
	}
	e.pts.push(f.PTS)
	if err := e.enc.Encode(img); err != nil {
		return nil, fmt.Errorf("x264 encode: %w", err)
	}
	// zerolatency emits at most one picture per call, however it is written
	var segments [][]byte
	for _, p := range e.out.take() {
		segments = append(segments, SplitNALUnits(p)...)
	}
	if len(segments) == 0 {
		return nil, nil
	}
	return []media.AccessUnit{{PTS: e.pts.next(), Segments: segments}}, nil
}

func (e *X264) Flush() ([]media.AccessUnit, error) {
	if e.enc == nil {
		return nil, ErrNotOpen
	}
	if e.flushed {
		return nil, nil
	}
	e.flushed = true
	if err := e.enc.Flush(); err != nil {
		return nil, fmt.Errorf("x264 flush: %w", err)
	}
	units := e.units()
	if n := e.pts.len(); n > 0 {
		e.log.Debug("x264 pictures without output", "count", n)
	}
	return units, nil
}

func (e *X264) Close() error {
	if e.enc == nil || e.closed {
		return nil
	}
	e.closed = true
	return e.enc.Close()
}

// units turns each delayed picture written during Flush into one unit.
func (e *X264) units() []media.AccessUnit {
	var units []media.AccessUnit
	for _, pic := range e.out.take() {
		units = append(units, media.AccessUnit{PTS: e.pts.next(), Segments: SplitNALUnits(pic)})
	}
	return units
}
