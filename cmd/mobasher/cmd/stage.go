package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mobasher/mobasher/internal/config"
	"github.com/mobasher/mobasher/internal/repository"
	"github.com/mobasher/mobasher/internal/scheduler"
)

// stageSchedulerFunc builds one stage's scheduler; the per-stage
// constructors in internal/scheduler all share this shape.
type stageSchedulerFunc func(repository.SegmentRepository, scheduler.Enqueuer, config.SchedulerConfig, *slog.Logger) *scheduler.StageScheduler

func addSchedulerFlags(cmd *cobra.Command) {
	cmd.Flags().Int("lookback-minutes", 0, "candidate window in minutes (overrides config)")
	cmd.Flags().Int("limit", 0, "max segments per pass (overrides config)")
}

func schedulerConfigFrom(cmd *cobra.Command, cfg *config.Config) config.SchedulerConfig {
	sc := cfg.Scheduler
	if cmd.Flags().Changed("lookback-minutes") {
		sc.LookbackMinutes, _ = cmd.Flags().GetInt("lookback-minutes")
	}
	if cmd.Flags().Changed("limit") {
		sc.EnqueueBatch, _ = cmd.Flags().GetInt("limit")
	}
	return sc
}

// runSchedulerPass executes a single enqueue pass and reports the count.
func runSchedulerPass(cmd *cobra.Command, build stageSchedulerFunc) error {
	logger := slog.Default()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	client, err := newQueueClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	sched := build(repository.NewSegmentRepository(db.DB), client, schedulerConfigFrom(cmd, cfg), logger)
	n, err := sched.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("enqueued %d segment(s)\n", n)
	return nil
}

// runSchedulerLoop runs the stage scheduler until SIGINT/SIGTERM.
func runSchedulerLoop(cmd *cobra.Command, build stageSchedulerFunc) error {
	logger := slog.Default()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	client, err := newQueueClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	sched := build(repository.NewSegmentRepository(db.DB), client, schedulerConfigFrom(cmd, cfg), logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	sched.Stop()
	return nil
}
