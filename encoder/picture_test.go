package encoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithZeroLatency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"", "zerolatency"},
		{"zerolatency", "zerolatency"},
		{"film", "film,zerolatency"},
		{"film, fastdecode", "film,fastdecode,zerolatency"},
		{"fastdecode,zerolatency", "fastdecode,zerolatency"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, withZeroLatency(tt.in), tt.in)
	}
}

func TestPTSQueueStampsInSubmissionOrder(t *testing.T) {
	t.Parallel()

	var q ptsQueue
	for _, pts := range []int64{4, 6, 8} {
		q.push(pts)
	}
	assert.Equal(t, int64(4), q.next())
	assert.Equal(t, int64(6), q.next())
	assert.Equal(t, 1, q.len())
	assert.Equal(t, int64(8), q.next())
	assert.Equal(t, int64(9), q.next(), "runs on past the last submitted value")
	assert.Zero(t, q.len())
}

func TestPictureWriterKeepsEachWrite(t *testing.T) {
	t.Parallel()

	var w pictureWriter
	buf := []byte{0, 0, 1, 0x65, 1}
	n, err := w.Write(buf)
	assert.NoError(t, err)
	assert.Equal(t, len(buf), n)
	buf[4] = 9
	_, _ = w.Write([]byte{0, 0, 1, 0x41, 2})
	_, _ = w.Write(nil)

	pics := w.take()
	assert.Equal(t, [][]byte{{0, 0, 1, 0x65, 1}, {0, 0, 1, 0x41, 2}}, pics, "payloads are copied")
	assert.Empty(t, w.take())
}
