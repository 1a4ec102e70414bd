package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go2tv.app/screenpump/media"
)

func TestParseEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		scheme Scheme
		host   string
		port   int
		path   string
	}{
		{in: "buffer://", scheme: SchemeBuffer},
		{in: "udp://127.0.0.1:5000", scheme: SchemeUDP, host: "127.0.0.1", port: 5000},
		{in: "udp://::1:5000", scheme: SchemeUDP, host: "::1", port: 5000},
		{in: "udp://[::1]:5000", scheme: SchemeUDP, host: "::1", port: 5000},
		{in: "srt://media.local:9000?streamid=live/a", scheme: SchemeSRT, host: "media.local", port: 9000},
		{in: "quic://10.0.0.2:4433?insecure=1", scheme: SchemeQUIC, host: "10.0.0.2", port: 4433},
		{in: "ws://host:8080/ingest", scheme: SchemeWS, host: "host", port: 8080, path: "/ingest"},
		{in: "wss://host:443", scheme: SchemeWSS, host: "host", port: 443, path: "/"},
		{in: "http://:8090/live.hevc", scheme: SchemeHTTP, port: 8090, path: "/live.hevc"},
		{in: "out.hevc", scheme: SchemeFile, path: "out.hevc"},
		{in: "/tmp/x/out.h264", scheme: SchemeFile, path: "/tmp/x/out.h264"},
		{in: "file:///tmp/out.hevc", scheme: SchemeFile, path: "/tmp/out.hevc"},
	}
	for _, tt := range tests {
		ep, err := ParseEndpoint(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.scheme, ep.Scheme, tt.in)
		assert.Equal(t, tt.host, ep.Host, tt.in)
		assert.Equal(t, tt.port, ep.Port, tt.in)
		assert.Equal(t, tt.path, ep.Path, tt.in)
		assert.Equal(t, tt.in, ep.String())
	}

	ep, err := ParseEndpoint("srt://media.local:9000?streamid=live/a")
	require.NoError(t, err)
	assert.Equal(t, "live/a", ep.Query.Get("streamid"))
	assert.Equal(t, "media.local:9000", ep.Addr())

	ep, err = ParseEndpoint("udp://::1:5000")
	require.NoError(t, err)
	assert.Equal(t, "[::1]:5000", ep.Addr())
}

func TestParseEndpointErrors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"",
		"udp://127.0.0.1",
		"udp://127.0.0.1:notaport",
		"udp://127.0.0.1:70000",
		"udp://:5000",
		"udp://127.0.0.1:0",
		"srt://host",
		"gopher://host:70",
		"ws://:80/x",
		"file://",
	} {
		_, err := ParseEndpoint(in)
		assert.ErrorIs(t, err, ErrInvalidEndpoint, in)
	}
}

func TestSendChunked(t *testing.T) {
	t.Parallel()

	seg := bytes.Repeat([]byte{0xab}, 20000)
	var sizes []int
	n, err := sendChunked(seg, DatagramChunk, func(p []byte) error {
		sizes = append(sizes, len(p))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 20000, n)
	assert.Equal(t, []int{8192, 8192, 3616}, sizes)

	n, err = sendChunked(make([]byte, DatagramChunk), DatagramChunk, func([]byte) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, DatagramChunk, n)
}

func TestSendChunkedStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	calls := 0
	n, err := sendChunked(make([]byte, 30000), DatagramChunk, func([]byte) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
	assert.Equal(t, DatagramChunk, n)
}

func TestCallback(t *testing.T) {
	t.Parallel()

	var got [][]byte
	tr, err := Open(context.Background(), "buffer://", Options{Sink: func(p []byte) (int, error) {
		got = append(got, append([]byte(nil), p...))
		return len(p), nil
	}})
	require.NoError(t, err)

	n, err := tr.WriteHeaders([][]byte{{1, 2}, {3}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = tr.WriteAccessUnit(media.AccessUnit{PTS: 4, Segments: [][]byte{{4, 5, 6}, nil, {7}}})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, [][]byte{{1, 2}, {3}, {4, 5, 6}, {7}}, got)
	assert.NoError(t, tr.Close(4, 3))
}

func TestCallbackIgnoresNegativeCounts(t *testing.T) {
	t.Parallel()

	tr, err := NewCallback(func(p []byte) (int, error) { return -1, nil })
	require.NoError(t, err)
	n, err := tr.WriteAccessUnit(media.AccessUnit{Segments: [][]byte{{1}, {2}}})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCallbackSinkError(t *testing.T) {
	t.Parallel()

	calls := 0
	tr, err := NewCallback(func(p []byte) (int, error) {
		calls++
		return 0, errors.New("full")
	})
	require.NoError(t, err)
	_, err = tr.WriteAccessUnit(media.AccessUnit{Segments: [][]byte{{1}, {2}}})
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, 1, calls)
}

func TestBufferWithoutSink(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), "buffer://", Options{})
	assert.ErrorIs(t, err, ErrNoSink)
}
