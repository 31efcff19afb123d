package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeChannelFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadChannel_Defaults(t *testing.T) {
	path := writeChannelFile(t, t.TempDir(), "kuwait1.yaml", `
id: kuwait1
name: Kuwait TV 1
input:
  url: https://example.com/kuwait1/master.m3u8
`)

	cfg, err := LoadChannel(path)
	require.NoError(t, err)

	assert.Equal(t, "kuwait1", cfg.ID)
	assert.Equal(t, 60, cfg.Recording.SegmentSeconds)
	assert.True(t, *cfg.Recording.AudioEnabled)
	assert.True(t, *cfg.Recording.VideoEnabled)
	assert.True(t, *cfg.Recording.ArchiveEnabled)
	assert.Equal(t, "720p", cfg.Recording.VideoQuality)
	assert.Equal(t, 3600, cfg.Recording.ArchiveSegmentSeconds)
	assert.Equal(t, "1080p", cfg.Recording.ArchiveQuality)
	assert.True(t, *cfg.Storage.DateFolders)
	assert.Equal(t, "audio", cfg.Storage.Directories["audio"])
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, 1, cfg.Audio.Channels)
	assert.Equal(t, "auto", cfg.Video.Encoder)
	assert.Equal(t, "medium", cfg.Video.Preset)

	q := cfg.Quality("720p")
	assert.Equal(t, "1280x720", q.Resolution)
	assert.Equal(t, "2500k", q.Bitrate)
	assert.Equal(t, 25, q.FPS)
}

func TestLoadChannel_Overrides(t *testing.T) {
	path := writeChannelFile(t, t.TempDir(), "ch.yaml", `
id: aljazeera
input:
  url: https://example.com/live.m3u8
  headers:
    User-Agent: "CustomAgent/2.0"
    Referer: "https://example.com/"
    Origin: "https://example.com"
recording:
  segment_seconds: 30
  video_enabled: false
  archive_segment_seconds: 600
audio:
  sample_rate: 44100
  channels: 2
video:
  encoder: libx264
  qualities:
    720p: {resolution: 1280x720, bitrate: 2000k, fps: 30}
    1080p: {resolution: 1920x1080, bitrate: 5000k, fps: 30}
`)

	cfg, err := LoadChannel(path)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Recording.SegmentSeconds)
	assert.False(t, *cfg.Recording.VideoEnabled)
	assert.True(t, *cfg.Recording.AudioEnabled)
	assert.Equal(t, 600, cfg.Recording.ArchiveSegmentSeconds)
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
	assert.Equal(t, 2, cfg.Audio.Channels)
	assert.Equal(t, "CustomAgent/2.0", cfg.UserAgent())

	// User-Agent goes through -user_agent, not the header block.
	block := cfg.HeaderBlock()
	assert.NotContains(t, block, "User-Agent")
	assert.Equal(t, "Origin: https://example.com\r\nReferer: https://example.com/\r\n", block)
}

func TestLoadChannel_DefaultUserAgent(t *testing.T) {
	path := writeChannelFile(t, t.TempDir(), "ch.yaml", `
id: ch1
input:
  url: https://example.com/live.m3u8
`)
	cfg, err := LoadChannel(path)
	require.NoError(t, err)
	assert.Equal(t, "Mobasher/1.0", cfg.UserAgent())
	assert.Empty(t, cfg.HeaderBlock())
}

func TestLoadChannel_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing id",
			content: "input:\n  url: https://example.com/x.m3u8\n",
			wantErr: "id is required",
		},
		{
			name:    "missing url",
			content: "id: ch1\n",
			wantErr: "input.url",
		},
		{
			name:    "id with slash",
			content: "id: a/b\ninput:\n  url: https://example.com/x.m3u8\n",
			wantErr: "path separators",
		},
		{
			name: "all legs disabled",
			content: `
id: ch1
input:
  url: https://example.com/x.m3u8
recording:
  audio_enabled: false
  video_enabled: false
  archive_enabled: false
`,
			wantErr: "all capture legs disabled",
		},
		{
			name: "unknown quality",
			content: `
id: ch1
input:
  url: https://example.com/x.m3u8
recording:
  video_quality: 4k
`,
			wantErr: "not in qualities table",
		},
		{
			name: "bad channels",
			content: `
id: ch1
input:
  url: https://example.com/x.m3u8
audio:
  channels: 6
`,
			wantErr: "audio.channels",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeChannelFile(t, t.TempDir(), "ch.yaml", tt.content)
			_, err := LoadChannel(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadChannelDir(t *testing.T) {
	dir := t.TempDir()
	writeChannelFile(t, dir, "b.yaml", "id: bbb\ninput:\n  url: https://example.com/b.m3u8\n")
	writeChannelFile(t, dir, "a.yml", "id: aaa\ninput:\n  url: https://example.com/a.m3u8\n")
	writeChannelFile(t, dir, "notes.txt", "ignored")

	channels, err := LoadChannelDir(dir)
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "aaa", channels[0].ID)
	assert.Equal(t, "bbb", channels[1].ID)
}

func TestLoadChannelDir_PropagatesErrors(t *testing.T) {
	dir := t.TempDir()
	writeChannelFile(t, dir, "bad.yaml", "id: ''\n")

	_, err := LoadChannelDir(dir)
	require.Error(t, err)
}
