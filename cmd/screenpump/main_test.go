package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunConfigErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 1, run([]string{"-fps", "0"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "fps")

	stderr.Reset()
	assert.Equal(t, 1, run([]string{"-bogus"}, &stdout, &stderr))

	stderr.Reset()
	assert.Equal(t, 0, run([]string{"-h"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "-input-res")
}

func TestRunUnknownEncoder(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.rgb")
	require.NoError(t, os.WriteFile(in, make([]byte, 4*2*3), 0o644))

	var stdout, stderr bytes.Buffer
	code := run([]string{"-input", in, "-input-res", "4x2", "-encoder", "nope", "-output", filepath.Join(dir, "out.hevc")}, &stdout, &stderr)
	assert.Equal(t, 1, code)
}

func TestRunFileToFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg is a shell script")
	}
	dir := t.TempDir()

	stream := []byte{
		0, 0, 0, 1, 0x46, 0x01, 0x50, 0, 0, 1, 0x26, 0x01, 0xaf,
		0, 0, 0, 1, 0x46, 0x01, 0x50, 0, 0, 1, 0x02, 0x01, 0xd0,
	}
	streamPath := filepath.Join(dir, "stream.hevc")
	require.NoError(t, os.WriteFile(streamPath, stream, 0o644))
	ffmpeg := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(ffmpeg, []byte("#!/bin/sh\ncat >/dev/null\ncat '"+streamPath+"'\n"), 0o755))

	in := filepath.Join(dir, "in.rgb")
	require.NoError(t, os.WriteFile(in, make([]byte, 2*4*2*3), 0o644))
	out := filepath.Join(dir, "out.hevc")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-input", in, "-input-res", "4x2", "-ffmpeg", ffmpeg, "-output", out}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, stream, got)
	assert.Zero(t, stdout.Len())
}
