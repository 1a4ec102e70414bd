package encoder

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	hevcAUD   = []byte{0, 0, 0, 1, 0x46, 0x01, 0x50}
	hevcVPS   = []byte{0, 0, 0, 1, 0x40, 0x01, 0x0c}
	hevcIDR   = []byte{0, 0, 1, 0x26, 0x01, 0xaf}
	hevcSlice = []byte{0, 0, 1, 0x02, 0x01, 0xd0}

	h264AUD   = []byte{0, 0, 0, 1, 0x09, 0xf0}
	h264SPS   = []byte{0, 0, 0, 1, 0x67, 0x42}
	h264Slice = []byte{0, 0, 1, 0x41, 0x9a}
)

func join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func hevcStream() (units [][]byte, stream []byte) {
	units = [][]byte{
		join(hevcAUD, hevcVPS, hevcIDR),
		join(hevcAUD, hevcSlice),
		join(hevcAUD, hevcSlice),
	}
	return units, join(units...)
}

func TestStartCode(t *testing.T) {
	t.Parallel()

	pos, header := startCode([]byte{0xff, 0, 0, 1, 0x46}, 0)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 4, header)

	pos, header = startCode([]byte{0xff, 0, 0, 0, 1, 0x46}, 0)
	assert.Equal(t, 1, pos, "four-byte start code includes its leading zero")
	assert.Equal(t, 5, header)

	pos, _ = startCode([]byte{0, 0, 1}, 0)
	assert.Equal(t, -1, pos, "start code without a header byte is incomplete")
}

func TestNALTypes(t *testing.T) {
	t.Parallel()
	assert.True(t, isAUD(CodecHEVC, 0x46))
	assert.False(t, isAUD(CodecHEVC, 0x40))
	assert.Equal(t, 32, nalType(CodecHEVC, 0x40))
	assert.True(t, isAUD(CodecH264, 0x09))
	assert.Equal(t, 7, nalType(CodecH264, 0x67))
}

func TestSplitNALUnits(t *testing.T) {
	t.Parallel()

	nals := SplitNALUnits(join([]byte{0xde, 0xad}, hevcAUD, hevcVPS, hevcIDR))
	require.Len(t, nals, 3)
	assert.Equal(t, hevcAUD, nals[0])
	assert.Equal(t, hevcVPS, nals[1])
	assert.Equal(t, hevcIDR, nals[2])

	assert.Empty(t, SplitNALUnits([]byte{1, 2, 3, 4}))
}

func TestAUCutterWholeStream(t *testing.T) {
	t.Parallel()

	want, stream := hevcStream()
	c := newAUCutter(CodecHEVC)
	c.Push(stream)

	var got [][]byte
	for {
		au, ok := c.Next()
		if !ok {
			break
		}
		got = append(got, au)
	}
	require.Len(t, got, 2, "last unit stays buffered until the next delimiter")
	assert.Equal(t, want[0], got[0])
	assert.Equal(t, want[1], got[1])
	assert.Equal(t, want[2], c.Drain())
	assert.Nil(t, c.Drain())
}

func TestAUCutterBytewise(t *testing.T) {
	t.Parallel()

	want, stream := hevcStream()
	c := newAUCutter(CodecHEVC)

	var got [][]byte
	for i := range stream {
		c.Push(stream[i : i+1])
		for {
			au, ok := c.Next()
			if !ok {
				break
			}
			got = append(got, au)
		}
	}
	got = append(got, c.Drain())
	assert.Equal(t, want, got)
}

func TestAUCutterDropsLeadingGarbage(t *testing.T) {
	t.Parallel()

	c := newAUCutter(CodecH264)
	c.Push(join([]byte{0x42, 0x42}, h264AUD, h264SPS, h264Slice, h264AUD, h264Slice))

	au, ok := c.Next()
	require.True(t, ok)
	assert.Equal(t, join(h264AUD, h264SPS, h264Slice), au)
	assert.Equal(t, join(h264AUD, h264Slice), c.Drain())
}

func TestAUCutterWaitsForDelimiter(t *testing.T) {
	t.Parallel()

	c := newAUCutter(CodecHEVC)
	c.Push(join(hevcVPS, hevcIDR))
	_, ok := c.Next()
	assert.False(t, ok)
}
