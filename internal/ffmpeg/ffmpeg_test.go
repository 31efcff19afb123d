package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindBinary_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	path, err := findBinary("ffmpeg", bin, envFFmpeg)
	require.NoError(t, err)
	assert.Equal(t, bin, path)

	_, err = findBinary("ffmpeg", filepath.Join(dir, "missing"), envFFmpeg)
	assert.Error(t, err)
}

func TestFindBinary_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "ffprobe")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	t.Setenv(envFFprobe, bin)
	path, err := findBinary("ffprobe", "", envFFprobe)
	require.NoError(t, err)
	assert.Equal(t, bin, path)

	t.Setenv(envFFprobe, filepath.Join(dir, "missing"))
	_, err = findBinary("ffprobe", "", envFFprobe)
	assert.Error(t, err)
}

func TestEncoderDetector_SelectH264(t *testing.T) {
	d := NewEncoderDetector("ffmpeg")
	d.candidates = []string{"h264_nvenc", "h264_qsv", "h264_vaapi"}

	// First candidate whose smoke test passes wins.
	d.test = func(_ context.Context, enc string) bool { return enc == "h264_qsv" }
	assert.Equal(t, "h264_qsv", d.SelectH264(context.Background()))

	// Nothing usable: software encoder.
	d.test = func(context.Context, string) bool { return false }
	assert.Equal(t, SoftwareH264Encoder, d.SelectH264(context.Background()))
}

func TestH264Candidates(t *testing.T) {
	assert.Equal(t, []string{"h264_videotoolbox"}, h264Candidates("darwin"))
	assert.Equal(t, []string{"h264_nvenc", "h264_qsv", "h264_vaapi"}, h264Candidates("linux"))
	assert.Empty(t, h264Candidates("plan9"))
}

func TestVersionRegexp(t *testing.T) {
	banner := "ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023 the FFmpeg developers"
	m := versionRe.FindStringSubmatch(banner)
	require.NotNil(t, m)
	assert.Equal(t, "6.1.1-3ubuntu5", m[1])

	assert.Nil(t, versionRe.FindStringSubmatch("not a banner"))
}
