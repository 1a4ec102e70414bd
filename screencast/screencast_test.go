package screencast

import (
	"image"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStreams(t *testing.T) {
	t.Parallel()
	raw := []any{
		[]any{
			uint32(57),
			map[string]dbus.Variant{
				"position":    dbus.MakeVariant([]any{int32(1920), int32(0)}),
				"size":        dbus.MakeVariant([]any{int32(1280), int32(1024)}),
				"source_type": dbus.MakeVariant(SourceTypeMonitor),
				"id":          dbus.MakeVariant("0"),
			},
		},
		[]any{uint32(1)}, // too short
	}

	streams := parseStreams(raw)
	require.Len(t, streams, 1)
	s := streams[0]
	assert.Equal(t, uint32(57), s.NodeID)
	assert.Equal(t, image.Rect(1920, 0, 3200, 1024), s.Bounds())
	assert.Equal(t, SourceTypeMonitor, s.SourceType)
	assert.Equal(t, "0", s.ID)
}

func TestParseStreamsRejectsUnknownShape(t *testing.T) {
	t.Parallel()
	assert.Nil(t, parseStreams("nope"))
}

func TestParseInt32Pair(t *testing.T) {
	t.Parallel()
	_, ok := parseInt32Pair([]any{int32(1)})
	assert.False(t, ok)
	_, ok = parseInt32Pair([]any{int32(1), "2"})
	assert.False(t, ok)
	v, ok := parseInt32Pair([]any{int32(3), int32(4)})
	assert.True(t, ok)
	assert.Equal(t, [2]int32{3, 4}, v)
}

func TestCapabilitiesCursorMode(t *testing.T) {
	t.Parallel()
	all := Capabilities{CursorModes: CursorModeHidden | CursorModeEmbedded}
	assert.Equal(t, CursorModeEmbedded, all.CursorMode(CursorModeEmbedded))

	hiddenOnly := Capabilities{CursorModes: CursorModeHidden}
	assert.Equal(t, CursorModeHidden, hiddenOnly.CursorMode(CursorModeEmbedded))

	assert.Zero(t, Capabilities{Version: 1}.CursorMode(CursorModeEmbedded))
}

func TestSelectSourcesVariants(t *testing.T) {
	t.Parallel()
	var nilOpts *SelectSourcesOptions
	assert.Len(t, nilOpts.variants("t1"), 1)

	v := (&SelectSourcesOptions{Types: SourceTypeMonitor, Multiple: true}).variants("t2")
	assert.Equal(t, "t2", v["handle_token"].Value())
	assert.Equal(t, SourceTypeMonitor, v["types"].Value())
	assert.Equal(t, true, v["multiple"].Value())
	assert.NotContains(t, v, "cursor_mode")
}

func TestParseStreamsStructArray(t *testing.T) {
	t.Parallel()
	raw := [][]any{{uint32(9), map[string]dbus.Variant{"mapping_id": dbus.MakeVariant("m")}}}
	streams := parseStreams(raw)
	require.Len(t, streams, 1)
	assert.Equal(t, uint32(9), streams[0].NodeID)
	assert.Equal(t, "m", streams[0].MappingID)
}
