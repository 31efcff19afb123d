package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"gorm.io/gorm"

	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/storage"
)

// ErrNotConfirmed is returned when a destructive operation runs without the
// explicit confirmation flag.
var ErrNotConfirmed = errors.New("refusing to run without explicit confirmation")

// ProcessMarker identifies our transcoder children in a process listing: the
// capture legs all carry this user-agent string on their command line.
const ProcessMarker = "Mobasher/1.0"

var dateDirPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ResetOptions controls the scope of a fresh reset.
type ResetOptions struct {
	// Confirmed must be set explicitly; Run refuses otherwise.
	Confirmed bool
	// IncludeChannels also truncates the channels table.
	IncludeChannels bool
	// TodayOnly restricts the media wipe to today's date directories.
	TodayOnly bool
}

// QueueFlusher empties the task broker.
type QueueFlusher interface {
	FlushAll(ctx context.Context) error
}

// Resetter wipes the pipeline back to a clean slate: lingering transcoders,
// broker state, derived tables and on-disk media.
type Resetter struct {
	db             *gorm.DB
	queue          QueueFlusher
	dataRoot       string
	screenshotRoot string
	metricsPorts   []int
	logger         *slog.Logger
}

// NewResetter creates a fresh-reset runner. queue may be nil when the broker
// is unreachable; the broker flush is then skipped.
func NewResetter(db *gorm.DB, queue QueueFlusher, dataRoot, screenshotRoot string, logger *slog.Logger) *Resetter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resetter{
		db:             db,
		queue:          queue,
		dataRoot:       dataRoot,
		screenshotRoot: screenshotRoot,
		logger:         logger,
	}
}

// WithMetricsPorts also frees the listed metrics ports during the reset, so
// restarted workers can bind immediately.
func (r *Resetter) WithMetricsPorts(ports []int) *Resetter {
	r.metricsPorts = ports
	return r
}

// Run executes the reset sequence. It keeps going past individual step
// failures so a half-broken deployment can still be cleaned, returning the
// first error encountered.
func (r *Resetter) Run(ctx context.Context, opts ResetOptions) error {
	if !opts.Confirmed {
		return ErrNotConfirmed
	}

	var firstErr error
	keep := func(step string, err error) {
		if err == nil {
			return
		}
		r.logger.Error("fresh reset step failed", slog.String("step", step), slog.String("error", err.Error()))
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", step, err)
		}
	}

	killed, err := KillMarkedProcesses(ctx, ProcessMarker, r.logger)
	keep("killing transcoders", err)
	if killed > 0 {
		r.logger.Info("killed lingering transcoders", slog.Int("count", killed))
	}

	released, err := ReleaseMetricsPorts(ctx, r.metricsPorts, r.logger)
	keep("releasing metrics ports", err)
	if released > 0 {
		r.logger.Info("released metrics ports", slog.Int("count", released))
	}

	if r.queue != nil {
		keep("flushing broker", r.queue.FlushAll(ctx))
	}

	keep("truncating tables", TruncateTables(ctx, r.db, opts.IncludeChannels))

	keep("wiping media", r.wipeMedia(opts.TodayOnly))

	return firstErr
}

// TruncateTables empties the derived tables, children before parents.
// Channels survive unless includeChannels is set.
func TruncateTables(ctx context.Context, db *gorm.DB, includeChannels bool) error {
	tables := []any{
		&models.SystemMetric{},
		&models.Alert{},
		&models.Entity{},
		&models.VisualEvent{},
		&models.SegmentEmbedding{},
		&models.Transcript{},
		&models.Segment{},
		&models.Recording{},
	}
	if includeChannels {
		tables = append(tables, &models.Channel{})
	}
	for _, model := range tables {
		if err := db.WithContext(ctx).
			Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(model).Error; err != nil {
			return fmt.Errorf("truncating %T: %w", model, err)
		}
	}
	return nil
}

// KillMarkedProcesses terminates every process whose command line contains
// marker, escalating to SIGKILL after a short grace. Returns the number of
// processes signalled.
func KillMarkedProcesses(ctx context.Context, marker string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing processes: %w", err)
	}

	var marked []*process.Process
	for _, p := range procs {
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(cmdline, marker) {
			marked = append(marked, p)
		}
	}

	for _, p := range marked {
		logger.Info("terminating marked process", slog.Int("pid", int(p.Pid)))
		_ = p.TerminateWithContext(ctx)
	}
	if len(marked) > 0 {
		time.Sleep(2 * time.Second)
		for _, p := range marked {
			if running, _ := p.IsRunningWithContext(ctx); running {
				_ = p.KillWithContext(ctx)
			}
		}
	}
	return len(marked), nil
}

// terminatePID signals one process; split out so tests can observe the
// signal instead of taking it.
var terminatePID = func(ctx context.Context, p *process.Process) error {
	return p.TerminateWithContext(ctx)
}

// ReleaseMetricsPorts terminates processes still listening on the given
// metrics ports. Returns the number of listeners signalled.
func ReleaseMetricsPorts(ctx context.Context, ports []int, logger *slog.Logger) (int, error) {
	if len(ports) == 0 {
		return 0, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	conns, err := gnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return 0, fmt.Errorf("listing listeners: %w", err)
	}
	want := make(map[uint32]bool, len(ports))
	for _, p := range ports {
		want[uint32(p)] = true
	}

	released := 0
	for _, c := range conns {
		if c.Status != "LISTEN" || !want[c.Laddr.Port] || c.Pid == 0 {
			continue
		}
		p, err := process.NewProcessWithContext(ctx, c.Pid)
		if err != nil {
			continue
		}
		logger.Info("releasing metrics port",
			slog.Int("port", int(c.Laddr.Port)), slog.Int("pid", int(c.Pid)))
		if err := terminatePID(ctx, p); err == nil {
			released++
		}
	}
	return released, nil
}

// wipeMedia removes per-date directories under the media trees and all
// screenshots. Directory shapes follow storage.Layout: audio/ and video/
// hold date dirs directly, archive/ nests them per channel.
func (r *Resetter) wipeMedia(todayOnly bool) error {
	if r.dataRoot == "" {
		return nil
	}
	today := time.Now().UTC().Format("2006-01-02")

	for _, kind := range []string{storage.KindAudio, storage.KindVideo} {
		if err := removeDateDirs(filepath.Join(r.dataRoot, kind), today, todayOnly); err != nil {
			return err
		}
	}

	archiveRoot := filepath.Join(r.dataRoot, storage.KindArchive)
	channels, err := os.ReadDir(archiveRoot)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading archive root: %w", err)
	}
	for _, ch := range channels {
		if !ch.IsDir() {
			continue
		}
		if err := removeDateDirs(filepath.Join(archiveRoot, ch.Name()), today, todayOnly); err != nil {
			return err
		}
	}

	if r.screenshotRoot != "" && !todayOnly {
		if err := os.RemoveAll(r.screenshotRoot); err != nil {
			return fmt.Errorf("wiping screenshots: %w", err)
		}
	}
	return nil
}

func removeDateDirs(root, today string, todayOnly bool) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", root, err)
	}
	for _, e := range entries {
		if !e.IsDir() || !dateDirPattern.MatchString(e.Name()) {
			continue
		}
		if todayOnly && e.Name() != today {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", filepath.Join(root, e.Name()), err)
		}
	}
	return nil
}
