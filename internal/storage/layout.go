// Package storage computes the on-disk layout of captured media: the
// audio/video/archive trees under the data root, start-only segment
// filenames, and the screenshot root shared by vision workers and the API.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Media kinds used as directory keys.
const (
	KindAudio   = "audio"
	KindVideo   = "video"
	KindArchive = "archive"
)

// Layout computes paths for one channel's media under a data root.
// With DateFolders the audio and video trees partition by UTC date
// ({root}/audio/2026-08-24), otherwise by channel id ({root}/audio/kuwait1).
// Archive files always nest per channel, then per date
// ({root}/archive/kuwait1/2026-08-24).
type Layout struct {
	DataRoot    string
	ChannelID   string
	DateFolders bool
	// Directories maps media kind to subdirectory name; empty entries fall
	// back to the kind itself.
	Directories map[string]string
}

func (l *Layout) dirName(kind string) string {
	if l.Directories != nil && l.Directories[kind] != "" {
		return l.Directories[kind]
	}
	return kind
}

func (l *Layout) partition(now time.Time) string {
	if l.DateFolders {
		return now.UTC().Format("2006-01-02")
	}
	return l.ChannelID
}

// Dir returns the directory for a media kind at the given time.
func (l *Layout) Dir(kind string, now time.Time) string {
	if kind == KindArchive {
		return filepath.Join(l.DataRoot, l.dirName(kind), l.ChannelID, now.UTC().Format("2006-01-02"))
	}
	return filepath.Join(l.DataRoot, l.dirName(kind), l.partition(now))
}

// AudioDir returns the audio segment directory for the given time.
func (l *Layout) AudioDir(now time.Time) string {
	return l.Dir(KindAudio, now)
}

// VideoDir returns the video segment directory for the given time.
func (l *Layout) VideoDir(now time.Time) string {
	return l.Dir(KindVideo, now)
}

// ArchiveDir returns the archive directory for the given time.
func (l *Layout) ArchiveDir(now time.Time) string {
	return l.Dir(KindArchive, now)
}

// EnsureDirs creates the audio, video and archive directories for now.
func (l *Layout) EnsureDirs(now time.Time) error {
	for _, kind := range []string{KindAudio, KindVideo, KindArchive} {
		if err := os.MkdirAll(l.Dir(kind, now), 0o755); err != nil {
			return fmt.Errorf("creating %s dir: %w", kind, err)
		}
	}
	return nil
}

// SegmentPattern returns the strftime output pattern the transcoder writes
// segments with: {dir}/{channel}-%Y%m%d-%H%M%S.{ext}.
func (l *Layout) SegmentPattern(kind, ext string, now time.Time) string {
	return filepath.Join(l.Dir(kind, now), fmt.Sprintf("%s-%%Y%%m%%d-%%H%%M%%S.%s", l.ChannelID, ext))
}

// ArchivePattern is like SegmentPattern for the archive tree. Archive files
// carry a dashed date in the stem: {channel}-%Y-%m-%d-%H%M%S.{ext}.
func (l *Layout) ArchivePattern(ext string, now time.Time) string {
	return filepath.Join(l.ArchiveDir(now), fmt.Sprintf("%s-%%Y-%%m-%%d-%%H%%M%%S.%s", l.ChannelID, ext))
}

// ArchiveBasename renders the filename an archive file starting at start gets.
func (l *Layout) ArchiveBasename(start time.Time, ext string) string {
	return fmt.Sprintf("%s-%s.%s", l.ChannelID, start.UTC().Format("2006-01-02-150405"), ext)
}

// SegmentBasename renders the filename a segment starting at start gets.
func (l *Layout) SegmentBasename(start time.Time, ext string) string {
	return fmt.Sprintf("%s-%s.%s", l.ChannelID, start.UTC().Format("20060102-150405"), ext)
}

// ParseStartOnly extracts the UTC start time encoded in a start-only
// filename ({anything}-YYYYMMDD-HHMMSS.ext). The date and time are always
// the last two dash-separated tokens, so channel ids containing dashes
// parse correctly.
func ParseStartOnly(filename string) (time.Time, error) {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(stem, "-")
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("filename %q has no start tokens", filename)
	}
	dateToken := parts[len(parts)-2]
	timeToken := parts[len(parts)-1]
	start, err := time.ParseInLocation("20060102150405", dateToken+timeToken, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing start from %q: %w", filename, err)
	}
	return start, nil
}

// ScreenshotRoot resolves the directory for frame captures: the configured
// root when set, otherwise {dataRoot}/screenshot. All writers and readers
// of screenshot paths go through this.
func ScreenshotRoot(configured, dataRoot string) string {
	if configured != "" {
		return configured
	}
	return filepath.Join(dataRoot, "screenshot")
}

// ScreenshotDir returns the per-segment screenshot directory:
// {root}/{channel}/{YYYY-MM-DD}/{segment-id}.
func ScreenshotDir(root, channelID string, segmentStart time.Time, segmentID string) string {
	return filepath.Join(root, channelID, segmentStart.UTC().Format("2006-01-02"), segmentID)
}
