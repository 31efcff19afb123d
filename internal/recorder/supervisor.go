package recorder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mobasher/mobasher/internal/config"
	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/observability"
	"github.com/mobasher/mobasher/internal/repository"
	"github.com/mobasher/mobasher/internal/storage"
)

// thumbnail parameters for archive files.
const (
	thumbMinAge  = 30 * time.Second
	thumbHeight  = 360
	thumbTimeout = 30 * time.Second
)

// leg is one supervised transcoder child.
type leg struct {
	name string
	args func(now time.Time) []string

	cmd  *exec.Cmd
	done chan error // closed by the waiter with the exit error

	restarts    int
	windowStart time.Time
}

// Supervisor owns one channel's capture: it spawns the enabled legs as
// process groups, restarts them within the hourly budget, runs the heartbeat
// and segment detection, and closes the recording row on exit.
type Supervisor struct {
	channel    *config.ChannelConfig
	cfg        config.RecorderConfig
	layout     *storage.Layout
	detector   *Detector
	recordings repository.RecordingRepository
	metrics    *observability.RecorderMetrics
	sysMetrics repository.SystemMetricRepository
	logger     *slog.Logger

	ffmpegPath string
	legs       []*leg
	recording  *models.Recording
}

// NewSupervisor wires a supervisor for one channel.
func NewSupervisor(
	channel *config.ChannelConfig,
	cfg config.RecorderConfig,
	ffmpegPath string,
	layout *storage.Layout,
	detector *Detector,
	recordings repository.RecordingRepository,
	metrics *observability.RecorderMetrics,
	logger *slog.Logger,
) *Supervisor {
	s := &Supervisor{
		channel:    channel,
		cfg:        cfg,
		layout:     layout,
		detector:   detector,
		recordings: recordings,
		metrics:    metrics,
		logger:     logger.With(slog.String("component", "supervisor"), slog.String("channel_id", channel.ID)),
		ffmpegPath: ffmpegPath,
	}

	builder := &CommandBuilder{Channel: channel, Layout: layout}
	if *channel.Recording.AudioEnabled {
		s.legs = append(s.legs, &leg{name: LegAudio, args: builder.AudioArgs})
	}
	if *channel.Recording.VideoEnabled {
		s.legs = append(s.legs, &leg{name: LegVideo, args: builder.VideoArgs})
	}
	if *channel.Recording.ArchiveEnabled {
		s.legs = append(s.legs, &leg{name: LegArchive, args: builder.ArchiveArgs})
	}
	return s
}

// WithSystemMetrics also samples the heartbeat into the system_metrics
// table, so dashboards without a Prometheus scrape still see liveness.
func (s *Supervisor) WithSystemMetrics(repo repository.SystemMetricRepository) *Supervisor {
	s.sysMetrics = repo
	return s
}

// Run captures until ctx is cancelled or the restart budget is exhausted.
// It always closes the recording row and removes partial segments on the
// way out.
func (s *Supervisor) Run(ctx context.Context) error {
	now := time.Now().UTC()
	if err := s.layout.EnsureDirs(now); err != nil {
		return err
	}

	s.recording = &models.Recording{ChannelID: s.channel.ID, StartedAt: now}
	if err := s.recordings.Create(ctx, s.recording); err != nil {
		return fmt.Errorf("opening recording: %w", err)
	}
	s.logger.Info("recording started",
		slog.String("recording_id", s.recording.ID.String()),
		slog.Int("legs", len(s.legs)))

	exits := make(chan *leg, len(s.legs))
	for _, l := range s.legs {
		if err := s.startLeg(l, exits); err != nil {
			s.stopAllLegs()
			s.closeRecording(models.RecordingStatusFailed, err.Error())
			return err
		}
	}

	heartbeat := time.Duration(s.cfg.HeartbeatSeconds) * time.Second
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopAllLegs()
			// Use a fresh context: the run context is already cancelled.
			cleanupCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			s.finalScanAndCleanup(cleanupCtx)
			cancel()
			s.closeRecording(models.RecordingStatusCompleted, "")
			s.logger.Info("recording stopped")
			return nil

		case l := <-exits:
			if err := s.handleLegExit(ctx, l, exits); err != nil {
				s.stopAllLegs()
				s.closeRecording(models.RecordingStatusFailed, err.Error())
				return err
			}

		case <-ticker.C:
			s.heartbeat(ctx)
		}
	}
}

// startLeg spawns the leg in its own process group and arranges for its
// exit to land on exits.
func (s *Supervisor) startLeg(l *leg, exits chan<- *leg) error {
	cmd := exec.Command(s.ffmpegPath, l.args(time.Now().UTC())...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = nil
	cmd.Stderr = s.legLogWriter(l.name)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s leg: %w", l.name, err)
	}
	l.cmd = cmd
	l.done = make(chan error, 1)
	s.logger.Info("leg started", slog.String("leg", l.name), slog.Int("pid", cmd.Process.Pid))

	go func(done chan<- error) {
		err := cmd.Wait()
		done <- err
		exits <- l
	}(l.done)
	return nil
}

// legLogWriter opens an append log for the leg's stderr under the log dir.
// Nil (discard) when no log dir is configured.
func (s *Supervisor) legLogWriter(legName string) io.Writer {
	if s.cfg.LogDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.cfg.LogDir, 0o755); err != nil {
		return nil
	}
	path := filepath.Join(s.cfg.LogDir, fmt.Sprintf("%s-%s.log", s.channel.ID, legName))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil
	}
	return f
}

// handleLegExit restarts the leg when the hourly budget allows, otherwise
// returns an error that fails the recording.
func (s *Supervisor) handleLegExit(ctx context.Context, l *leg, exits chan<- *leg) error {
	if ctx.Err() != nil {
		return nil
	}

	now := time.Now().UTC()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) > time.Hour {
		l.windowStart = now
		l.restarts = 0
	}

	exitErr := <-l.done
	s.logger.Warn("leg exited",
		slog.String("leg", l.name),
		slog.Int("restarts_this_hour", l.restarts),
		slog.Any("error", exitErr))

	if l.restarts >= s.cfg.MaxRestartsPerHour {
		return fmt.Errorf("%s leg exceeded %d restarts in the last hour", l.name, s.cfg.MaxRestartsPerHour)
	}
	l.restarts++
	s.metrics.LegRestarts.WithLabelValues(s.channel.ID, l.name).Inc()

	if err := s.layout.EnsureDirs(now); err != nil {
		return err
	}
	return s.startLeg(l, exits)
}

// heartbeat bumps the liveness metrics and runs one detection and one
// thumbnail pass.
func (s *Supervisor) heartbeat(ctx context.Context) {
	now := time.Now().UTC()
	s.metrics.Heartbeats.WithLabelValues(s.channel.ID).Inc()
	s.metrics.LastHeartbeat.WithLabelValues(s.channel.ID).Set(float64(now.Unix()))

	if s.sysMetrics != nil {
		channelID := s.channel.ID
		if err := s.sysMetrics.Record(ctx, &models.SystemMetric{
			Timestamp:   now,
			MetricName:  "recorder_heartbeat",
			MetricValue: float64(now.Unix()),
			ChannelID:   &channelID,
		}); err != nil {
			s.logger.Debug("recording heartbeat sample", slog.Any("error", err))
		}
	}

	// Day rollover needs tomorrow's directories before the muxer writes there.
	if err := s.layout.EnsureDirs(now); err != nil {
		s.logger.Warn("ensuring media dirs", slog.Any("error", err))
	}

	if n, err := s.detector.Scan(ctx, s.recording.ID); err != nil {
		s.logger.Warn("segment scan failed", slog.Any("error", err))
	} else if n > 0 {
		s.logger.Debug("segments registered", slog.Int("count", n))
	}

	if *s.channel.Recording.ArchiveEnabled {
		s.thumbnailPass(ctx, now)
	}
}

// thumbnailPass creates a -thumb.jpg next to every settled archive file
// that does not have one yet.
func (s *Supervisor) thumbnailPass(ctx context.Context, now time.Time) {
	dir := s.layout.ArchiveDir(now)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".mp4") {
			continue
		}
		mp4 := filepath.Join(dir, name)
		thumb := strings.TrimSuffix(mp4, ".mp4") + "-thumb.jpg"
		if _, err := os.Stat(thumb); err == nil {
			continue
		}
		info, err := entry.Info()
		if err != nil || time.Since(info.ModTime()) < thumbMinAge {
			continue
		}
		s.extractThumbnail(ctx, mp4, thumb)
	}
}

// extractThumbnail grabs a frame from the middle of the file, skipping the
// first and last ten seconds when the file is long enough.
func (s *Supervisor) extractThumbnail(ctx context.Context, mp4, thumb string) {
	duration, err := s.detector.prober.Duration(ctx, mp4)
	if err != nil || duration <= 0 {
		duration = float64(s.channel.Recording.ArchiveSegmentSeconds)
	}
	offset := thumbnailOffset(duration)

	tctx, cancel := context.WithTimeout(ctx, thumbTimeout)
	defer cancel()
	cmd := exec.CommandContext(tctx, s.ffmpegPath, ThumbnailArgs(mp4, thumb, int(offset), thumbHeight)...)
	if err := cmd.Run(); err != nil {
		s.logger.Warn("thumbnail extraction failed",
			slog.String("file", filepath.Base(mp4)),
			slog.Any("error", err))
		return
	}
	s.logger.Debug("thumbnail created", slog.String("file", filepath.Base(thumb)))
}

// thumbnailOffset picks the grab point: the middle of the file, after
// trimming ten seconds off each end when the file is long enough to spare
// them. The edges of an hourly archive are where muxer restarts leave junk
// frames.
func thumbnailOffset(duration float64) float64 {
	if usable := duration - 20; usable > 0 {
		return 10 + usable/2
	}
	return duration / 2
}

// stopAllLegs signals each leg's process group: SIGTERM, a grace wait, then
// SIGKILL. Idempotent; legs that already exited are skipped.
func (s *Supervisor) stopAllLegs() {
	grace := s.cfg.StopGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	for _, l := range s.legs {
		if l.cmd == nil || l.cmd.Process == nil {
			continue
		}
		pgid := l.cmd.Process.Pid
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
		select {
		case <-l.done:
		case <-time.After(grace):
			s.logger.Warn("leg ignored SIGTERM, killing", slog.String("leg", l.name))
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
			<-l.done
		}
		l.cmd = nil
	}
}

// finalScanAndCleanup registers the last full segments, then removes partials
// and unregistered extras left by the stop.
func (s *Supervisor) finalScanAndCleanup(ctx context.Context) {
	if _, err := s.detector.Scan(ctx, s.recording.ID); err != nil {
		s.logger.Warn("final segment scan failed", slog.Any("error", err))
	}
	if removed := s.detector.CleanupPartials(ctx); removed > 0 {
		s.logger.Info("partial segments removed", slog.Int("count", removed))
	}
	if removed := s.detector.CleanupExtras(ctx); removed > 0 {
		s.logger.Info("extra files removed", slog.Int("count", removed))
	}
}

// closeRecording completes the recording row; failures are logged, not
// returned, because the supervisor is already on its way out.
func (s *Supervisor) closeRecording(status, errorMessage string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var msg *string
	if errorMessage != "" {
		msg = &errorMessage
	}
	if err := s.recordings.Complete(ctx, s.recording.ID, s.recording.StartedAt, status, msg); err != nil {
		s.logger.Error("closing recording failed", slog.Any("error", err))
	}
}
