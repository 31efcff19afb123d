// Package recorder runs the per-channel capture: it builds the transcoder
// command lines, supervises the audio/video/archive legs as process groups,
// and registers finished segments in the database.
package recorder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mobasher/mobasher/internal/config"
	"github.com/mobasher/mobasher/internal/storage"
)

// Leg names.
const (
	LegAudio   = "audio"
	LegVideo   = "video"
	LegArchive = "archive"
)

// CommandBuilder renders ffmpeg argv slices for one channel's capture legs.
type CommandBuilder struct {
	Channel *config.ChannelConfig
	Layout  *storage.Layout
}

// inputArgs is the shared network input prefix: quiet logging, reconnect
// handling, the channel's User-Agent and extra headers, then the stream URL.
func (b *CommandBuilder) inputArgs(loglevel string) []string {
	args := []string{"-nostdin"}
	if loglevel != "" {
		args = append(args, "-loglevel", loglevel)
	}
	args = append(args,
		"-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5",
		"-user_agent", b.Channel.UserAgent(),
	)
	if hb := b.Channel.HeaderBlock(); hb != "" {
		args = append(args, "-headers", hb)
	}
	return append(args, "-i", b.Channel.Input.URL)
}

// segmentArgs is the shared segment muxer suffix.
func segmentArgs(segmentSeconds int) []string {
	return []string{
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-reset_timestamps", "1",
		"-strftime", "1",
	}
}

// AudioArgs builds the audio leg: demuxed PCM segments for ASR.
func (b *CommandBuilder) AudioArgs(now time.Time) []string {
	args := b.inputArgs("error")
	args = append(args,
		"-vn",
		"-ac", strconv.Itoa(b.Channel.Audio.Channels),
		"-ar", strconv.Itoa(b.Channel.Audio.SampleRate),
		"-c:a", "pcm_s16le",
	)
	args = append(args, segmentArgs(b.Channel.Recording.SegmentSeconds)...)
	return append(args, b.Layout.SegmentPattern(storage.KindAudio, "wav", now))
}

// VideoArgs builds the video leg: silent H.264 segments for vision. Keyframes
// are forced on segment boundaries so every file starts decodable.
func (b *CommandBuilder) VideoArgs(now time.Time) []string {
	q := b.Channel.Quality(b.Channel.Recording.VideoQuality)
	seg := b.Channel.Recording.SegmentSeconds

	args := b.inputArgs("error")
	args = append(args,
		"-an",
		"-c:v", b.videoEncoder(),
		"-preset", b.Channel.Video.Preset,
		"-s", q.Resolution,
		"-b:v", q.Bitrate,
		"-r", strconv.Itoa(q.FPS),
		"-movflags", "+faststart",
		"-pix_fmt", "yuv420p",
		"-g", strconv.Itoa(q.FPS*2),
		"-keyint_min", strconv.Itoa(q.FPS),
		"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", seg),
	)
	args = append(args, segmentArgs(seg)...)
	args = append(args, "-segment_format_options", "movflags=+faststart")
	return append(args, b.Layout.SegmentPattern(storage.KindVideo, "mp4", now))
}

// ArchiveArgs builds the archive leg: clock-aligned mp4 files carrying both
// streams, fragmented so a crash mid-hour still leaves a playable file.
func (b *CommandBuilder) ArchiveArgs(now time.Time) []string {
	q := b.Channel.Quality(b.Channel.Recording.ArchiveQuality)
	seg := b.Channel.Recording.ArchiveSegmentSeconds

	// The archive leg keeps default loglevel; its stderr is the only
	// place sustained upstream trouble shows up.
	args := b.inputArgs("")
	args = append(args,
		"-map", "0:v:0", "-map", "0:a:0",
		"-c:v", b.videoEncoder(),
		"-preset", "slow",
		"-s", q.Resolution,
		"-b:v", q.Bitrate,
		"-r", strconv.Itoa(q.FPS),
		"-g", strconv.Itoa(q.FPS*2),
		"-keyint_min", strconv.Itoa(q.FPS),
		"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", seg),
		"-c:a", "aac", "-b:a", "128k",
		"-f", "segment",
		"-segment_atclocktime", "1",
		"-segment_time", strconv.Itoa(seg),
		"-reset_timestamps", "1",
		"-strftime", "1",
		"-segment_format", "mp4",
		"-segment_format_options", "movflags=+faststart+frag_keyframe+empty_moov",
	)
	return append(args, b.Layout.ArchivePattern("mp4", now))
}

func (b *CommandBuilder) videoEncoder() string {
	if enc := b.Channel.Video.Encoder; enc != "" && enc != "auto" {
		return enc
	}
	return "libx264"
}

// ThumbnailArgs extracts one frame at offsetSec into outPath, scaled to
// height with lanczos.
func ThumbnailArgs(mp4Path, outPath string, offsetSec, height int) []string {
	args := []string{
		"-y",
		"-ss", strconv.Itoa(offsetSec),
		"-i", mp4Path,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=-2:%d:flags=lanczos", height),
	}
	// jpg quality knob only applies to jpeg output
	if strings.HasSuffix(outPath, ".jpg") {
		args = append(args, "-q:v", "2")
	}
	return append(args, outPath)
}
