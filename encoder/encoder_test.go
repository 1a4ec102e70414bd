package encoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go2tv.app/screenpump/media"
)

func TestConfigNormalize(t *testing.T) {
	t.Parallel()

	cfg, err := Config{Width: 64, Height: 48, Quality: 150}.normalize()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.FPS)
	assert.Equal(t, 100, cfg.Quality)
	assert.Equal(t, CodecHEVC, cfg.Codec)
	assert.Equal(t, "ultrafast", cfg.Preset)
	assert.Equal(t, "zerolatency", cfg.Tune)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.NotNil(t, cfg.Logger)

	_, err = Config{Width: 0, Height: 48}.normalize()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Config{Width: 64, Height: 48, Codec: "vp9"}.normalize()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigCRF(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 51, Config{Quality: 0}.CRF())
	assert.Equal(t, 11, Config{Quality: 80}.CRF())
	assert.Equal(t, 0, Config{Quality: 100}.CRF())
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	assert.Contains(t, Names(), "ffmpeg")

	enc, err := New("ffmpeg")
	require.NoError(t, err)
	assert.IsType(t, &FFmpeg{}, enc)

	_, err = New("nope")
	assert.ErrorIs(t, err, ErrUnknownEncoder)
}

func TestCheckFrame(t *testing.T) {
	t.Parallel()

	cfg := Config{Width: 4, Height: 2}
	assert.NoError(t, checkFrame(cfg, media.NewFrame(4, 2, media.FormatPlanarYUV)))
	assert.ErrorIs(t, checkFrame(cfg, media.NewFrame(4, 2, media.FormatRGB24)), media.ErrInvalidFrame)
	assert.ErrorIs(t, checkFrame(cfg, media.NewFrame(2, 2, media.FormatPlanarYUV)), media.ErrInvalidFrame)

	short := media.NewFrame(4, 2, media.FormatPlanarYUV)
	short.Data = short.Data[:5]
	assert.ErrorIs(t, checkFrame(cfg, short), media.ErrInvalidFrame)
}
