//go:build x264

package encoder

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go2tv.app/screenpump/internal/logging"
	"go2tv.app/screenpump/media"
)

func TestX264KeepsInputTimestampsWithDelayingTune(t *testing.T) {
	var logs bytes.Buffer
	e := &X264{}
	require.NoError(t, e.Open(Config{
		Width: 64, Height: 64, Codec: CodecH264, Quality: 30,
		Preset: "medium", Tune: "film",
		Logger: logging.New(&logs, false),
	}))
	defer e.Close()
	assert.Equal(t, "film,zerolatency", e.cfg.Tune)
	assert.Contains(t, logs.String(), "x264 ignores quality")

	var got []int64
	for i := 0; i < 5; i++ {
		f := media.NewFrame(64, 64, media.FormatPlanarYUV)
		for j := range f.Data {
			f.Data[j] = byte(i * 40)
		}
		f.PTS = int64(10 + i)
		units, err := e.Encode(f)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(units), 1)
		for _, u := range units {
			got = append(got, u.PTS)
		}
	}
	units, err := e.Flush()
	require.NoError(t, err)
	for _, u := range units {
		got = append(got, u.PTS)
	}
	assert.Equal(t, []int64{10, 11, 12, 13, 14}, got)
}
