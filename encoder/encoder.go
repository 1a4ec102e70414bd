// Package encoder defines the capability the pump drives (open, headers,
// encode, flush, close) and the backends that implement it.
package encoder

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"go2tv.app/screenpump/internal/logging"
	"go2tv.app/screenpump/media"
)

type Codec string

const (
	CodecHEVC Codec = "hevc"
	CodecH264 Codec = "h264"
)

var (
	ErrUnknownEncoder = errors.New("unknown encoder")
	ErrInvalidConfig  = errors.New("invalid encoder config")
	ErrNotOpen        = errors.New("encoder is not open")
	ErrFlushed        = errors.New("encoder already flushed")
)

// Config describes the pictures an encoder will receive.
type Config struct {
	Width   int
	Height  int
	FPS     int
	Quality int // 0-100, higher is better
	Codec   Codec
	Preset  string
	Tune    string

	// FFmpegPath and Hardware only apply to the ffmpeg backend.
	FFmpegPath string
	Hardware   bool

	Logger *slog.Logger
}

func (c Config) normalize() (Config, error) {
	if c.Width <= 0 || c.Height <= 0 {
		return c, fmt.Errorf("%w: size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.FPS <= 0 {
		c.FPS = 30
	}
	if c.Quality < 0 {
		c.Quality = 0
	}
	if c.Quality > 100 {
		c.Quality = 100
	}
	switch c.Codec {
	case "":
		c.Codec = CodecHEVC
	case CodecHEVC, CodecH264:
	default:
		return c, fmt.Errorf("%w: codec %q", ErrInvalidConfig, c.Codec)
	}
	if c.Preset == "" {
		c.Preset = "ultrafast"
	}
	if c.Tune == "" {
		c.Tune = "zerolatency"
	}
	if strings.TrimSpace(c.FFmpegPath) == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.Logger == nil {
		c.Logger = logging.Discard()
	}
	return c, nil
}

// CRF maps a 0-100 quality to a constant rate factor on the 0-51 scale.
func (c Config) CRF() int {
	return 51 - c.Quality*51/100
}

// Encoder turns planar frames into access units. Encode may return zero or
// more units per frame; Flush drains delayed units and returns none once the
// encoder is empty. Close releases everything and is safe to call twice.
type Encoder interface {
	Open(cfg Config) error
	Headers() ([][]byte, error)
	Encode(f *media.Frame) ([]media.AccessUnit, error)
	Flush() ([]media.AccessUnit, error)
	Close() error
}

type Factory func() Encoder

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes an encoder backend available to New.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

func New(name string) (Encoder, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownEncoder, name, strings.Join(Names(), ", "))
	}
	return f(), nil
}

// Names lists the registered backends in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func checkFrame(cfg Config, f *media.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.Format != media.FormatPlanarYUV {
		return fmt.Errorf("%w: encoder wants %s, got %s", media.ErrInvalidFrame, media.FormatPlanarYUV, f.Format)
	}
	if f.Width != cfg.Width || f.Height != cfg.Height {
		return fmt.Errorf("%w: frame %dx%d, encoder opened at %dx%d", media.ErrInvalidFrame, f.Width, f.Height, cfg.Width, cfg.Height)
	}
	return nil
}
