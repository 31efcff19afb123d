package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mobasher/mobasher/internal/config"
	"github.com/mobasher/mobasher/internal/storage"
)

var testNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func testChannel() *config.ChannelConfig {
	on := true
	return &config.ChannelConfig{
		ID: "kuwait1",
		Input: config.ChannelInput{
			URL: "https://cdn.example.com/live/master.m3u8",
			Headers: map[string]string{
				"User-Agent": "Mozilla/5.0",
				"Referer":    "https://example.com/",
				"Origin":     "https://example.com",
			},
		},
		Recording: config.ChannelRecording{
			SegmentSeconds:        60,
			AudioEnabled:          &on,
			VideoEnabled:          &on,
			VideoQuality:          "720p",
			ArchiveEnabled:        &on,
			ArchiveSegmentSeconds: 3600,
			ArchiveQuality:        "1080p",
		},
		Audio: config.ChannelAudio{SampleRate: 16000, Channels: 1},
		Video: config.ChannelVideo{
			Encoder: "auto",
			Preset:  "medium",
			Qualities: map[string]config.VideoQuality{
				"720p":  {Resolution: "1280x720", Bitrate: "2500k", FPS: 25},
				"1080p": {Resolution: "1920x1080", Bitrate: "4500k", FPS: 25},
			},
		},
	}
}

func testLayout(root string) *storage.Layout {
	return &storage.Layout{DataRoot: root, ChannelID: "kuwait1", DateFolders: true}
}

func TestCommandBuilder_AudioArgs(t *testing.T) {
	b := &CommandBuilder{Channel: testChannel(), Layout: testLayout("/data")}

	want := []string{
		"-nostdin", "-loglevel", "error",
		"-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5",
		"-user_agent", "Mozilla/5.0",
		"-headers", "Origin: https://example.com\r\nReferer: https://example.com/\r\n",
		"-i", "https://cdn.example.com/live/master.m3u8",
		"-vn", "-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le",
		"-f", "segment", "-segment_time", "60", "-reset_timestamps", "1", "-strftime", "1",
		filepath.Join("/data", "audio", "2026-08-24", "kuwait1-%Y%m%d-%H%M%S.wav"),
	}
	assert.Equal(t, want, b.AudioArgs(testNow))
}

func TestCommandBuilder_VideoArgs(t *testing.T) {
	b := &CommandBuilder{Channel: testChannel(), Layout: testLayout("/data")}

	want := []string{
		"-nostdin", "-loglevel", "error",
		"-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5",
		"-user_agent", "Mozilla/5.0",
		"-headers", "Origin: https://example.com\r\nReferer: https://example.com/\r\n",
		"-i", "https://cdn.example.com/live/master.m3u8",
		"-an",
		"-c:v", "libx264",
		"-preset", "medium",
		"-s", "1280x720",
		"-b:v", "2500k",
		"-r", "25",
		"-movflags", "+faststart",
		"-pix_fmt", "yuv420p",
		"-g", "50",
		"-keyint_min", "25",
		"-force_key_frames", "expr:gte(t,n_forced*60)",
		"-f", "segment", "-segment_time", "60", "-reset_timestamps", "1", "-strftime", "1",
		"-segment_format_options", "movflags=+faststart",
		filepath.Join("/data", "video", "2026-08-24", "kuwait1-%Y%m%d-%H%M%S.mp4"),
	}
	assert.Equal(t, want, b.VideoArgs(testNow))
}

func TestCommandBuilder_ArchiveArgs(t *testing.T) {
	b := &CommandBuilder{Channel: testChannel(), Layout: testLayout("/data")}

	want := []string{
		// The archive leg keeps the default loglevel.
		"-nostdin",
		"-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5",
		"-user_agent", "Mozilla/5.0",
		"-headers", "Origin: https://example.com\r\nReferer: https://example.com/\r\n",
		"-i", "https://cdn.example.com/live/master.m3u8",
		"-map", "0:v:0", "-map", "0:a:0",
		"-c:v", "libx264",
		"-preset", "slow",
		"-s", "1920x1080",
		"-b:v", "4500k",
		"-r", "25",
		"-g", "50",
		"-keyint_min", "25",
		"-force_key_frames", "expr:gte(t,n_forced*3600)",
		"-c:a", "aac", "-b:a", "128k",
		"-f", "segment",
		"-segment_atclocktime", "1",
		"-segment_time", "3600",
		"-reset_timestamps", "1",
		"-strftime", "1",
		"-segment_format", "mp4",
		"-segment_format_options", "movflags=+faststart+frag_keyframe+empty_moov",
		filepath.Join("/data", "archive", "kuwait1", "2026-08-24", "kuwait1-%Y-%m-%d-%H%M%S.mp4"),
	}
	assert.Equal(t, want, b.ArchiveArgs(testNow))
}

func TestCommandBuilder_NoExtraHeaders(t *testing.T) {
	ch := testChannel()
	ch.Input.Headers = nil
	b := &CommandBuilder{Channel: ch, Layout: testLayout("/data")}

	args := b.AudioArgs(testNow)
	assert.NotContains(t, args, "-headers")
	assert.Contains(t, args, "Mobasher/1.0")
}

func TestCommandBuilder_EncoderOverride(t *testing.T) {
	ch := testChannel()
	ch.Video.Encoder = "h264_videotoolbox"
	b := &CommandBuilder{Channel: ch, Layout: testLayout("/data")}

	assert.Contains(t, b.VideoArgs(testNow), "h264_videotoolbox")
	assert.Contains(t, b.ArchiveArgs(testNow), "h264_videotoolbox")
}

func TestThumbnailArgs(t *testing.T) {
	jpg := ThumbnailArgs("/a/clip.mp4", "/a/clip-thumb.jpg", 1790, 360)
	assert.Equal(t, []string{
		"-y", "-ss", "1790", "-i", "/a/clip.mp4",
		"-frames:v", "1", "-vf", "scale=-2:360:flags=lanczos",
		"-q:v", "2",
		"/a/clip-thumb.jpg",
	}, jpg)

	png := ThumbnailArgs("/a/clip.mp4", "/a/clip-thumb.png", 10, 240)
	assert.NotContains(t, png, "-q:v")
}
