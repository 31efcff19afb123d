package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/observability"
	"github.com/mobasher/mobasher/internal/queue"
	"github.com/mobasher/mobasher/internal/repository"
	"github.com/mobasher/mobasher/internal/scheduler"
	"github.com/mobasher/mobasher/internal/worker"
)

var visionCmd = &cobra.Command{
	Use:   "vision",
	Short: "OCR, object, face and screenshot stage",
}

var visionWorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume the vision queue and persist visual events",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.Vision.EngineCmd) == 0 {
			return fmt.Errorf("vision.engine_cmd is not configured")
		}

		ctx, stop := signalContext()
		defer stop()

		db, err := openDatabase(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		r := newRepos(db)

		client, err := newQueueClient(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer client.Close()

		reg := prometheus.NewRegistry()
		metrics := observability.NewStageMetrics(reg, queue.QueueVision)
		if srv := observability.ServeMetrics(reg, cfg.Vision.MetricsPort); srv != nil {
			defer srv.Close()
		}

		w := worker.NewVisionWorker(
			r.Segments, r.VisualEvents, client,
			cfg.Vision, metrics, logger, cfg.Storage.DataRoot,
		)
		// One engine subprocess serves every vision task; the task name
		// travels in the environment so the engine picks its model.
		for _, taskType := range []string{
			queue.TaskVisionOCR,
			queue.TaskVisionObjects,
			queue.TaskVisionFaces,
			queue.TaskVisionScreenshots,
		} {
			analyser, err := worker.NewExecAnalyser(taskType, worker.NeedsVideo, cfg.Vision.EngineCmd, engineTimeout)
			if err != nil {
				return err
			}
			w.SetAnalyser(taskType, analyser)
		}

		srv, err := queue.NewServer(cfg.Redis, queue.ServerOptions{
			Queue:       queue.QueueVision,
			Concurrency: cfg.Vision.Concurrency,
			RetryDelay:  cfg.Vision.RetryDelay,
		}, logger)
		if err != nil {
			return err
		}
		w.Register(srv)

		go func() {
			<-ctx.Done()
			srv.Shutdown()
		}()
		return srv.Run()
	},
}

var visionEnqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Run one scheduler pass for segments missing visual events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSchedulerPass(cmd, scheduler.NewVisionScheduler)
	},
}

var visionEnqueueScreenshotsCmd = &cobra.Command{
	Use:   "enqueue-screenshots",
	Short: "Enqueue only the screenshot task for segments missing frame captures",
	RunE: func(cmd *cobra.Command, args []string) error {
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
		segments := repository.NewSegmentRepository(db.DB)

		client, err := newQueueClient(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer client.Close()

		sc := schedulerConfigFrom(cmd, cfg)
		lookback := time.Duration(sc.LookbackMinutes) * time.Minute
		if lookback <= 0 {
			lookback = 10 * time.Minute
		}
		missing, err := segments.ListMissingVisualEvents(ctx, models.EventTypeScreenshot, repository.MissingArtifactFilter{
			Since: time.Now().UTC().Add(-lookback),
			Limit: sc.EnqueueBatch,
		})
		if err != nil {
			return err
		}

		enqueued := 0
		for _, seg := range missing {
			// No dedupe key: this command is an operator backfill and must
			// win over a scheduler pass that already claimed the window.
			ok, err := client.EnqueueSegment(ctx, queue.TaskVisionScreenshots, queue.SegmentPayload{
				SegmentID: seg.ID,
				StartedAt: seg.StartedAt,
				ChannelID: seg.ChannelID,
			}, queue.EnqueueOptions{MaxRetry: -1})
			if err != nil {
				return err
			}
			if ok {
				enqueued++
			}
		}
		fmt.Printf("enqueued %d screenshot task(s)\n", enqueued)
		return nil
	},
}

var visionSchedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Continuously enqueue segments missing visual events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSchedulerLoop(cmd, scheduler.NewVisionScheduler)
	},
}

func init() {
	rootCmd.AddCommand(visionCmd)
	visionCmd.AddCommand(visionWorkerCmd, visionEnqueueCmd, visionEnqueueScreenshotsCmd, visionSchedulerCmd)

	addSchedulerFlags(visionEnqueueCmd)
	addSchedulerFlags(visionEnqueueScreenshotsCmd)
	addSchedulerFlags(visionSchedulerCmd)
}
