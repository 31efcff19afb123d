// Package retention prunes derived tables and aged screenshots, and holds
// the destructive fresh-reset path behind an explicit confirmation.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/mobasher/mobasher/internal/config"
	"github.com/mobasher/mobasher/internal/models"
)

// TableResult is the outcome of pruning one table.
type TableResult struct {
	Table  string    `json:"table"`
	Cutoff time.Time `json:"cutoff"`
	Rows   int64     `json:"rows"`
}

// Report summarises one retention sweep.
type Report struct {
	DryRun      bool          `json:"dry_run"`
	Tables      []TableResult `json:"tables"`
	Screenshots int           `json:"screenshots"`
}

// pruneTarget binds a model to the time column its cutoff applies to.
type pruneTarget struct {
	table  string
	model  any
	column string
	days   int
}

// Runner executes retention sweeps over the derived tables.
type Runner struct {
	db             *gorm.DB
	cfg            config.RetentionConfig
	screenshotRoot string
	logger         *slog.Logger
	cron           *cron.Cron
}

// NewRunner creates a retention runner. screenshotRoot may be empty to skip
// the filesystem sweep.
func NewRunner(db *gorm.DB, cfg config.RetentionConfig, screenshotRoot string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{db: db, cfg: cfg, screenshotRoot: screenshotRoot, logger: logger}
}

func (r *Runner) targets() []pruneTarget {
	return []pruneTarget{
		{"transcripts", &models.Transcript{}, "segment_started_at", r.cfg.TranscriptsDays},
		{"segment_embeddings", &models.SegmentEmbedding{}, "segment_started_at", r.cfg.EmbeddingsDays},
		{"entities", &models.Entity{}, "started_at", r.cfg.EntitiesDays},
		{"alerts", &models.Alert{}, "created_at", r.cfg.AlertsDays},
	}
}

// Run executes one sweep. In dry-run mode it only counts the rows and files
// a real run would remove.
func (r *Runner) Run(ctx context.Context, dryRun bool) (*Report, error) {
	now := time.Now().UTC()
	report := &Report{DryRun: dryRun}

	for _, t := range r.targets() {
		if t.days <= 0 {
			continue
		}
		cutoff := now.AddDate(0, 0, -t.days)

		var rows int64
		q := r.db.WithContext(ctx).Model(t.model).Where(t.column+" < ?", cutoff)
		if dryRun {
			if err := q.Count(&rows).Error; err != nil {
				return nil, fmt.Errorf("counting %s: %w", t.table, err)
			}
		} else {
			res := r.db.WithContext(ctx).Where(t.column+" < ?", cutoff).Delete(t.model)
			if res.Error != nil {
				return nil, fmt.Errorf("pruning %s: %w", t.table, res.Error)
			}
			rows = res.RowsAffected
		}

		r.logger.Info("retention sweep",
			slog.String("table", t.table),
			slog.Time("cutoff", cutoff),
			slog.Int64("rows", rows),
			slog.Bool("dry_run", dryRun),
		)
		report.Tables = append(report.Tables, TableResult{Table: t.table, Cutoff: cutoff, Rows: rows})
	}

	if r.screenshotRoot != "" && r.cfg.ScreenshotsDays > 0 {
		cutoff := now.AddDate(0, 0, -r.cfg.ScreenshotsDays)
		removed, err := r.sweepScreenshots(cutoff, dryRun)
		if err != nil {
			return nil, err
		}
		report.Screenshots = removed
	}

	return report, nil
}

// sweepScreenshots removes image files under the screenshot root whose
// modification time predates cutoff.
func (r *Runner) sweepScreenshots(cutoff time.Time, dryRun bool) (int, error) {
	removed := 0
	err := filepath.WalkDir(r.screenshotRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jpg", ".jpeg", ".png":
		default:
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if !dryRun {
			if err := os.Remove(path); err != nil {
				return err
			}
		}
		removed++
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return removed, fmt.Errorf("sweeping screenshots: %w", err)
	}
	return removed, nil
}

// StartCron schedules periodic sweeps per the configured cron expression.
// A no-op when the expression is empty.
func (r *Runner) StartCron(ctx context.Context) error {
	if r.cfg.Cron == "" {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(r.cfg.Cron, func() {
		if _, err := r.Run(ctx, false); err != nil {
			r.logger.Error("scheduled retention sweep failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("parsing retention cron %q: %w", r.cfg.Cron, err)
	}
	c.Start()
	r.cron = c
	return nil
}

// StopCron stops the scheduled sweeps, waiting for a running one to finish.
func (r *Runner) StopCron() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
		r.cron = nil
	}
}
