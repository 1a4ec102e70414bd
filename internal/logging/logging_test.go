package logging

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldLogRateLimits(t *testing.T) {
	t.Parallel()
	var last atomic.Int64
	assert.True(t, ShouldLog(&last, time.Hour))
	assert.False(t, ShouldLog(&last, time.Hour))
	assert.True(t, ShouldLog(nil, time.Hour))
	assert.True(t, ShouldLog(&last, 0))
}

func TestNewLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(&buf, false)
	log.Debug("hidden")
	log.Info("shown", "key", "value")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "key=value")

	buf.Reset()
	New(&buf, true).Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestDebugEnabled(t *testing.T) {
	t.Setenv(EnvDebug, "1")
	assert.True(t, DebugEnabled())
	t.Setenv(EnvDebug, "0")
	assert.False(t, DebugEnabled())
}
