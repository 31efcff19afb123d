package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 8, 24, 13, 5, 0, 0, time.UTC)

func testLayout(root string, dateFolders bool) *Layout {
	return &Layout{
		DataRoot:    root,
		ChannelID:   "kuwait1",
		DateFolders: dateFolders,
	}
}

func TestLayout_Dirs_DateFolders(t *testing.T) {
	l := testLayout("/data", true)

	assert.Equal(t, filepath.Join("/data", "audio", "2026-08-24"), l.AudioDir(testNow))
	assert.Equal(t, filepath.Join("/data", "video", "2026-08-24"), l.VideoDir(testNow))
	assert.Equal(t, filepath.Join("/data", "archive", "kuwait1", "2026-08-24"), l.ArchiveDir(testNow))
}

func TestLayout_Dirs_ChannelFolders(t *testing.T) {
	l := testLayout("/data", false)

	assert.Equal(t, filepath.Join("/data", "audio", "kuwait1"), l.AudioDir(testNow))
	// The archive tree is channel-then-date either way.
	assert.Equal(t, filepath.Join("/data", "archive", "kuwait1", "2026-08-24"), l.ArchiveDir(testNow))
}

func TestLayout_CustomDirectories(t *testing.T) {
	l := testLayout("/data", true)
	l.Directories = map[string]string{KindAudio: "wav"}

	assert.Equal(t, filepath.Join("/data", "wav", "2026-08-24"), l.AudioDir(testNow))
	// Unmapped kinds fall back to their own name.
	assert.Equal(t, filepath.Join("/data", "video", "2026-08-24"), l.VideoDir(testNow))
}

func TestLayout_Patterns(t *testing.T) {
	l := testLayout("/data", true)

	assert.Equal(t,
		filepath.Join("/data", "audio", "2026-08-24", "kuwait1-%Y%m%d-%H%M%S.wav"),
		l.SegmentPattern(KindAudio, "wav", testNow))
	assert.Equal(t,
		filepath.Join("/data", "archive", "kuwait1", "2026-08-24", "kuwait1-%Y-%m-%d-%H%M%S.mp4"),
		l.ArchivePattern("mp4", testNow))
}

func TestLayout_ArchiveBasename(t *testing.T) {
	l := testLayout("/data", true)

	assert.Equal(t, "kuwait1-2026-08-24-130500.mp4", l.ArchiveBasename(testNow, "mp4"))
}

func TestLayout_SegmentBasename(t *testing.T) {
	l := testLayout("/data", true)

	assert.Equal(t, "kuwait1-20260824-130500.wav", l.SegmentBasename(testNow, "wav"))

	// Local times render in UTC.
	loc := time.FixedZone("AST", 3*3600)
	assert.Equal(t, "kuwait1-20260824-130500.wav", l.SegmentBasename(testNow.In(loc), "wav"))
}

func TestLayout_EnsureDirs(t *testing.T) {
	root := t.TempDir()
	l := testLayout(root, true)

	require.NoError(t, l.EnsureDirs(testNow))
	for _, kind := range []string{"audio", "video"} {
		info, err := os.Stat(filepath.Join(root, kind, "2026-08-24"))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	info, err := os.Stat(filepath.Join(root, "archive", "kuwait1", "2026-08-24"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestParseStartOnly(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     time.Time
		wantErr  bool
	}{
		{
			name:     "audio segment",
			filename: "kuwait1-20260824-130500.wav",
			want:     testNow,
		},
		{
			name:     "channel id with dashes",
			filename: "al-jazeera-hd-20260824-130500.mp4",
			want:     testNow,
		},
		{
			name:     "no tokens",
			filename: "segment.wav",
			wantErr:  true,
		},
		{
			name:     "garbage tokens",
			filename: "kuwait1-notadate-notatime.wav",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStartOnly(tt.filename)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseStartOnly_RoundTrip(t *testing.T) {
	l := testLayout("/data", true)
	name := l.SegmentBasename(testNow, "mp4")
	got, err := ParseStartOnly(name)
	require.NoError(t, err)
	assert.True(t, got.Equal(testNow))
}

func TestScreenshotRoot(t *testing.T) {
	assert.Equal(t, "/screens", ScreenshotRoot("/screens", "/data"))
	assert.Equal(t, filepath.Join("/data", "screenshot"), ScreenshotRoot("", "/data"))
}

func TestScreenshotDir(t *testing.T) {
	dir := ScreenshotDir("/screens", "kuwait1", testNow, "seg-1")
	assert.Equal(t, filepath.Join("/screens", "kuwait1", "2026-08-24", "seg-1"), dir)
}
