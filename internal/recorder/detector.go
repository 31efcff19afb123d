package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mobasher/mobasher/internal/config"
	"github.com/mobasher/mobasher/internal/ffmpeg"
	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/observability"
	"github.com/mobasher/mobasher/internal/repository"
	"github.com/mobasher/mobasher/internal/storage"
)

// Size gates for deciding a segment file is complete. The transcoder writes
// segments in place, so a file that is too small for its nominal duration is
// still being written (or died partway).
const (
	wavFillRatio      = 0.85
	minVideoSizeBytes = 500_000
	minOtherSizeBytes = 100_000
)

// Detector finds finished segment files on disk and registers them as
// segment rows. It never deletes anything during normal scans; the cleanup
// passes run only around shutdown.
type Detector struct {
	channel  *config.ChannelConfig
	layout   *storage.Layout
	prober   ffmpeg.DurationProber
	segments repository.SegmentRepository
	metrics  *observability.RecorderMetrics
	logger   *slog.Logger
}

// NewDetector wires a detector for one channel.
func NewDetector(
	channel *config.ChannelConfig,
	layout *storage.Layout,
	prober ffmpeg.DurationProber,
	segments repository.SegmentRepository,
	metrics *observability.RecorderMetrics,
	logger *slog.Logger,
) *Detector {
	return &Detector{
		channel:  channel,
		layout:   layout,
		prober:   prober,
		segments: segments,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "detector"), slog.String("channel_id", channel.ID)),
	}
}

// expectedWAVBytes is the PCM size of a nominal-length segment:
// sample_rate * channels * 2 bytes * seconds.
func (d *Detector) expectedWAVBytes() int64 {
	return int64(d.channel.Audio.SampleRate) * int64(d.channel.Audio.Channels) * 2 *
		int64(d.channel.Recording.SegmentSeconds)
}

// fullBySize applies the per-format size gate.
func (d *Detector) fullBySize(path string, size int64) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return float64(size) >= float64(d.expectedWAVBytes())*wavFillRatio
	case ".mp4", ".mkv":
		return size >= minVideoSizeBytes
	default:
		return size >= minOtherSizeBytes
	}
}

// minOKSeconds is the probed-duration gate used by the cleanup passes:
// at least 10 seconds, and at least 92% of the nominal segment length.
func (d *Detector) minOKSeconds() float64 {
	threshold := float64(d.channel.Recording.SegmentSeconds) * 0.92
	if threshold < 10 {
		threshold = 10
	}
	return threshold
}

// foundSegment is one on-disk file that passed the gate.
type foundSegment struct {
	path      string
	mediaType string // audio | video
	startedAt time.Time
	sizeBytes int64
}

// Scan registers every full segment file currently on disk under the given
// recording. Audio and video files for the same window merge into one row.
// Returns the number of files upserted.
func (d *Detector) Scan(ctx context.Context, recordingID uuid.UUID) (int, error) {
	now := time.Now().UTC()

	var found []foundSegment
	if d.channel.Recording.AudioEnabled == nil || *d.channel.Recording.AudioEnabled {
		found = append(found, d.collect(d.layout.AudioDir(now), ".wav", "audio")...)
	}
	if d.channel.Recording.VideoEnabled == nil || *d.channel.Recording.VideoEnabled {
		found = append(found, d.collect(d.layout.VideoDir(now), ".mp4", "video")...)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].startedAt.Before(found[j].startedAt) })

	segSeconds := time.Duration(d.channel.Recording.SegmentSeconds) * time.Second
	upserted := 0
	for _, f := range found {
		seg := &models.Segment{
			ID:            models.DeterministicSegmentID(d.channel.ID, f.startedAt),
			RecordingID:   recordingID,
			ChannelID:     d.channel.ID,
			StartedAt:     f.startedAt,
			EndedAt:       f.startedAt.Add(segSeconds),
			FileSizeBytes: models.Int64Ptr(f.sizeBytes),
			Status:        models.SegmentStatusCompleted,
		}
		if f.mediaType == "audio" {
			seg.AudioPath = models.StringPtr(f.path)
		} else {
			seg.VideoPath = models.StringPtr(f.path)
		}
		if err := d.segments.Upsert(ctx, seg); err != nil {
			return upserted, fmt.Errorf("registering segment %s: %w", filepath.Base(f.path), err)
		}
		d.metrics.SegmentsUpserts.WithLabelValues(d.channel.ID, f.mediaType).Inc()
		upserted++
	}
	return upserted, nil
}

// collect lists full segment files of one media type in dir.
func (d *Detector) collect(dir, ext, mediaType string) []foundSegment {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []foundSegment
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !d.fullBySize(path, info.Size()) {
			continue
		}
		startedAt, err := storage.ParseStartOnly(entry.Name())
		if err != nil {
			d.logger.Warn("unparseable segment filename", slog.String("file", entry.Name()))
			continue
		}
		out = append(out, foundSegment{
			path:      path,
			mediaType: mediaType,
			startedAt: startedAt,
			sizeBytes: info.Size(),
		})
	}
	return out
}

// CleanupPartials deletes short or partial segment files, probing each file's
// real duration and falling back to the size gate when probing fails. Run
// after the legs have stopped so nothing is mid-write.
func (d *Detector) CleanupPartials(ctx context.Context) int {
	now := time.Now().UTC()
	minOK := d.minOKSeconds()
	removed := 0
	removed += d.cleanupDir(ctx, d.layout.AudioDir(now), ".wav", minOK)
	removed += d.cleanupDir(ctx, d.layout.VideoDir(now), ".mp4", minOK)
	return removed
}

func (d *Detector) cleanupDir(ctx context.Context, dir, ext string, minOK float64) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		dur, err := d.prober.Duration(ctx, path)
		var partial bool
		if err != nil {
			info, statErr := entry.Info()
			partial = statErr == nil && !d.fullBySize(path, info.Size())
		} else {
			partial = dur < minOK
		}
		if partial {
			if rmErr := os.Remove(path); rmErr == nil {
				removed++
				d.logger.Debug("removed partial segment", slog.String("file", entry.Name()))
			}
		}
	}
	return removed
}

// CleanupExtras keeps only the earliest full segment per media type in
// today's folders. Used by short validation runs that should leave exactly
// one segment behind.
func (d *Detector) CleanupExtras(ctx context.Context) int {
	now := time.Now().UTC()
	minOK := d.minOKSeconds()
	removed := 0
	removed += d.keepEarliest(ctx, d.layout.AudioDir(now), ".wav", minOK)
	removed += d.keepEarliest(ctx, d.layout.VideoDir(now), ".mp4", minOK)
	return removed
}

func (d *Detector) keepEarliest(ctx context.Context, dir, ext string, minOK float64) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	type candidate struct {
		startedAt time.Time
		path      string
	}
	var full []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		startedAt, err := storage.ParseStartOnly(entry.Name())
		if err != nil {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		dur, err := d.prober.Duration(ctx, path)
		if err != nil {
			info, statErr := entry.Info()
			if statErr != nil || !d.fullBySize(path, info.Size()) {
				continue
			}
		} else if dur < minOK {
			continue
		}
		full = append(full, candidate{startedAt: startedAt, path: path})
	}
	if len(full) < 2 {
		return 0
	}
	sort.Slice(full, func(i, j int) bool { return full[i].startedAt.Before(full[j].startedAt) })
	removed := 0
	for _, c := range full[1:] {
		if err := os.Remove(c.path); err == nil {
			removed++
		}
	}
	return removed
}
