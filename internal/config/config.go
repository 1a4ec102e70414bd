// Package config holds the session configuration. Values come from an
// optional YAML file, then defaults, then SCREENPUMP_* environment variables,
// then command-line flags.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	InputScreen = "screen"
	InputPortal = "portal"
	InputCamera = "camera"

	DefaultOutput  = "buffer://"
	DefaultFPS     = 30
	DefaultQuality = 80

	minFPS = 1
	maxFPS = 240
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is everything a session needs to run.
type Config struct {
	Input    string `yaml:"input"`     // screen, portal, camera or a raw RGB24 file path
	InputRes string `yaml:"input_res"` // WxH; required for file input
	FPS      int    `yaml:"fps"`
	Output   string `yaml:"output"` // buffer://, udp://, srt://, quic://, ws://, wss://, http:// or a file path
	Quality  int    `yaml:"quality"`

	Encoder         string `yaml:"encoder"` // ffmpeg or x264
	Codec           string `yaml:"codec"`   // hevc or h264
	Preset          string `yaml:"preset"`
	Tune            string `yaml:"tune"`
	FFmpegPath      string `yaml:"ffmpeg_path"`
	HardwareEncoder bool   `yaml:"hardware_encoder"`

	Frames    int  `yaml:"frames"` // 0 means until input ends or cancelled
	Seek      int  `yaml:"seek"`
	Interlace bool `yaml:"interlace"`

	StreamIndex   int  `yaml:"stream_index"`   // portal stream to use
	FollowPointer bool `yaml:"follow_pointer"` // capture whichever display holds the pointer
	Verbose       bool `yaml:"verbose"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	c := &Config{Quality: DefaultQuality}
	c.setDefaults()
	return c
}

// Load reads a YAML file. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Decode(bytes.NewReader(data))
}

// Decode strictly decodes YAML from r over the defaults. Unknown keys are
// rejected. An empty document is not an error. Numeric keys that are present
// keep their value even when it is zero.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.setDefaults()
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Input == "" {
		c.Input = InputScreen
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	if c.FPS == 0 {
		c.FPS = DefaultFPS
	}
	if c.Encoder == "" {
		c.Encoder = "ffmpeg"
	}
	if c.Codec == "" {
		c.Codec = "hevc"
	}
	if c.Preset == "" {
		c.Preset = "ultrafast"
	}
	if c.Tune == "" {
		c.Tune = "zerolatency"
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
}

// IsFileInput reports whether Input names a path rather than a live source.
func (c *Config) IsFileInput() bool {
	switch c.Input {
	case InputScreen, InputPortal, InputCamera:
		return false
	default:
		return true
	}
}

// Resolution parses InputRes. It returns 0, 0 when InputRes is empty.
func (c *Config) Resolution() (int, int, error) {
	if strings.TrimSpace(c.InputRes) == "" {
		return 0, 0, nil
	}
	return ParseRes(c.InputRes)
}

// ParseRes parses a "WxH" resolution.
func ParseRes(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("%w: resolution %q is not WxH", ErrInvalidConfig, s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: resolution width %q: %v", ErrInvalidConfig, ws, err)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: resolution height %q: %v", ErrInvalidConfig, hs, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("%w: resolution %dx%d must be positive", ErrInvalidConfig, w, h)
	}
	return w, h, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are skipped; existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Resolve builds the final Config from command-line args: the -config file
// (or defaults), then the environment, then any flag explicitly set.
func Resolve(args []string, stderr io.Writer) (*Config, error) {
	fset := flag.NewFlagSet("screenpump", flag.ContinueOnError)
	if stderr != nil {
		fset.SetOutput(stderr)
	}

	var path string
	fset.StringVar(&path, "config", "", "YAML config file")
	flags := Default()
	flags.bindFlags(fset)

	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	if fset.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected arguments %v", ErrInvalidConfig, fset.Args())
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	fset.Visit(func(f *flag.Flag) {
		cfg.copyFlag(f.Name, flags)
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) bindFlags(fset *flag.FlagSet) {
	fset.StringVar(&c.Input, "input", c.Input, "input: screen, portal, camera or a raw RGB24 file")
	fset.StringVar(&c.InputRes, "input-res", c.InputRes, "input resolution WxH")
	fset.IntVar(&c.FPS, "fps", c.FPS, "frame rate")
	fset.StringVar(&c.Output, "output", c.Output, "output: buffer://, udp://host:port, srt://, quic://, ws://, http://:port/path or a file path")
	fset.IntVar(&c.Quality, "quality", c.Quality, "quality 0-100")
	fset.StringVar(&c.Encoder, "encoder", c.Encoder, "encoder backend")
	fset.StringVar(&c.Codec, "codec", c.Codec, "codec: hevc or h264")
	fset.StringVar(&c.Preset, "preset", c.Preset, "encoder preset")
	fset.StringVar(&c.Tune, "tune", c.Tune, "encoder tune")
	fset.StringVar(&c.FFmpegPath, "ffmpeg", c.FFmpegPath, "ffmpeg binary")
	fset.BoolVar(&c.HardwareEncoder, "hw", c.HardwareEncoder, "probe hardware encoders")
	fset.IntVar(&c.Frames, "frames", c.Frames, "stop after this many input frames")
	fset.IntVar(&c.Seek, "seek", c.Seek, "skip this many input frames first")
	fset.BoolVar(&c.Interlace, "interlace", c.Interlace, "encode two fields per frame")
	fset.IntVar(&c.StreamIndex, "stream", c.StreamIndex, "portal stream index")
	fset.BoolVar(&c.FollowPointer, "follow-pointer", c.FollowPointer, "capture the display under the pointer")
	fset.BoolVar(&c.Verbose, "v", c.Verbose, "debug logging")
}

func (c *Config) copyFlag(name string, from *Config) {
	switch name {
	case "input":
		c.Input = from.Input
	case "input-res":
		c.InputRes = from.InputRes
	case "fps":
		c.FPS = from.FPS
	case "output":
		c.Output = from.Output
	case "quality":
		c.Quality = from.Quality
	case "encoder":
		c.Encoder = from.Encoder
	case "codec":
		c.Codec = from.Codec
	case "preset":
		c.Preset = from.Preset
	case "tune":
		c.Tune = from.Tune
	case "ffmpeg":
		c.FFmpegPath = from.FFmpegPath
	case "hw":
		c.HardwareEncoder = from.HardwareEncoder
	case "frames":
		c.Frames = from.Frames
	case "seek":
		c.Seek = from.Seek
	case "interlace":
		c.Interlace = from.Interlace
	case "stream":
		c.StreamIndex = from.StreamIndex
	case "follow-pointer":
		c.FollowPointer = from.FollowPointer
	case "v":
		c.Verbose = from.Verbose
	}
}
