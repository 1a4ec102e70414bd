package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Decode(strings.NewReader("output: udp://127.0.0.1:5000\nfps: 25\n"))
	require.NoError(t, err)
	assert.Equal(t, "udp://127.0.0.1:5000", cfg.Output)
	assert.Equal(t, 25, cfg.FPS)
	assert.Equal(t, InputScreen, cfg.Input)
	assert.Equal(t, DefaultQuality, cfg.Quality)
	assert.Equal(t, "hevc", cfg.Codec)
	require.NoError(t, cfg.Validate())
}

func TestDecodeKeepsExplicitZeroQuality(t *testing.T) {
	t.Parallel()
	cfg, err := Decode(strings.NewReader("quality: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Quality)
	require.NoError(t, cfg.Validate())
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := Decode(strings.NewReader("outptu: udp://127.0.0.1:5000\n"))
	require.Error(t, err)
}

func TestDecodeEmptyDocument(t *testing.T) {
	t.Parallel()
	cfg, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultOutput, cfg.Output)
}

func TestParseRes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		w, h    int
		wantErr bool
	}{
		{in: "1920x1080", w: 1920, h: 1080},
		{in: " 600X700 ", w: 600, h: 700},
		{in: "1920", wantErr: true},
		{in: "ax1", wantErr: true},
		{in: "0x10", wantErr: true},
		{in: "10x-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			w, h, err := ParseRes(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "fps", mutate: func(c *Config) { c.FPS = 0 }},
		{name: "quality", mutate: func(c *Config) { c.Quality = 101 }},
		{name: "frames", mutate: func(c *Config) { c.Frames = -1 }},
		{name: "seek", mutate: func(c *Config) { c.Seek = -1 }},
		{name: "codec", mutate: func(c *Config) { c.Codec = "vp9" }},
		{name: "file input without res", mutate: func(c *Config) { c.Input = "/dev/video0" }},
		{name: "bad res", mutate: func(c *Config) { c.InputRes = "big" }},
		{name: "empty output", mutate: func(c *Config) { c.Output = " " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	cfg := Default()
	cfg.Input = "frames.rgb"
	cfg.InputRes = "320x240"
	assert.NoError(t, cfg.Validate())
}

func TestResolvePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "screenpump.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fps: 10\nquality: 50\noutput: out.hevc\n"), 0o600))

	t.Setenv("SCREENPUMP_QUALITY", "60")
	t.Setenv("SCREENPUMP_FPS", "1000")

	cfg, err := Resolve([]string{"-config", path, "-output", "udp://127.0.0.1:9000", "-interlace"}, nil)
	require.NoError(t, err)
	assert.Equal(t, maxFPS, cfg.FPS, "env is clamped and overrides the file")
	assert.Equal(t, 60, cfg.Quality, "env overrides the file")
	assert.Equal(t, "udp://127.0.0.1:9000", cfg.Output, "flag overrides the file")
	assert.True(t, cfg.Interlace)
}

func TestResolveRejectsInvalid(t *testing.T) {
	_, err := Resolve([]string{"-fps", "0"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Resolve([]string{"extra"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SCREENPUMP_TEST_DOTENV=loaded\n"), 0o600))
	t.Setenv("SCREENPUMP_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("SCREENPUMP_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("SCREENPUMP_TEST_DOTENV"))
}

func TestBoolEnv(t *testing.T) {
	t.Setenv("SCREENPUMP_TEST_BOOL", "yes")
	assert.True(t, BoolEnv("SCREENPUMP_TEST_BOOL", false))
	t.Setenv("SCREENPUMP_TEST_BOOL", "nonsense")
	assert.True(t, BoolEnv("SCREENPUMP_TEST_BOOL", true))
	assert.Equal(t, 5, IntEnvClamped("SCREENPUMP_TEST_UNSET_INT", 5, 0, 10))
}
