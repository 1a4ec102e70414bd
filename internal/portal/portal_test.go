package portal

import (
	"regexp"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestPath(t *testing.T) {
	t.Parallel()
	got := RequestPath(":1.42", "screenpump_abc")
	assert.Equal(t, dbus.ObjectPath("/org/freedesktop/portal/desktop/request/1_42/screenpump_abc"), got)
	assert.True(t, got.IsValid())
}

func TestGenerateTokenIsPathSafe(t *testing.T) {
	t.Parallel()
	a, b := GenerateToken(), GenerateToken()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9_]+$`), a)
}

func TestParseResponse(t *testing.T) {
	t.Parallel()
	status, results, err := parseResponse([]any{uint32(0), map[string]dbus.Variant{"k": FromString("v")}})
	require.NoError(t, err)
	assert.Equal(t, Success, status)
	assert.Equal(t, "v", results["k"].Value())

	_, _, err = parseResponse([]any{uint32(0)})
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
	_, _, err = parseResponse([]any{"0", map[string]dbus.Variant{}})
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}
