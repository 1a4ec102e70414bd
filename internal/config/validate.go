package config

import (
	"fmt"
	"strings"
)

// Validate returns the first configuration error found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Input) == "" {
		return fmt.Errorf("%w: input is empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Output) == "" {
		return fmt.Errorf("%w: output is empty", ErrInvalidConfig)
	}
	if c.FPS < minFPS || c.FPS > maxFPS {
		return fmt.Errorf("%w: fps must be between %d and %d, got %d", ErrInvalidConfig, minFPS, maxFPS, c.FPS)
	}
	if c.Quality < 0 || c.Quality > 100 {
		return fmt.Errorf("%w: quality must be between 0 and 100, got %d", ErrInvalidConfig, c.Quality)
	}
	if c.Frames < 0 {
		return fmt.Errorf("%w: frames must be >= 0, got %d", ErrInvalidConfig, c.Frames)
	}
	if c.Seek < 0 {
		return fmt.Errorf("%w: seek must be >= 0, got %d", ErrInvalidConfig, c.Seek)
	}
	if c.StreamIndex < 0 {
		return fmt.Errorf("%w: stream_index must be >= 0, got %d", ErrInvalidConfig, c.StreamIndex)
	}
	switch c.Codec {
	case "hevc", "h264":
	default:
		return fmt.Errorf("%w: codec must be hevc or h264, got %q", ErrInvalidConfig, c.Codec)
	}

	w, h, err := c.Resolution()
	if err != nil {
		return err
	}
	if c.IsFileInput() && w == 0 {
		return fmt.Errorf("%w: input_res is required for file input %q", ErrInvalidConfig, c.Input)
	}
	if c.Interlace && h != 0 && h < 2 {
		return fmt.Errorf("%w: interlace needs at least two rows", ErrInvalidConfig)
	}
	return nil
}
