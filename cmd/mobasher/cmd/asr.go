package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mobasher/mobasher/internal/nlp"
	"github.com/mobasher/mobasher/internal/observability"
	"github.com/mobasher/mobasher/internal/queue"
	"github.com/mobasher/mobasher/internal/scheduler"
	"github.com/mobasher/mobasher/internal/worker"
)

// engineTimeout bounds one analyser subprocess invocation. Transcribing a
// 60s segment on CPU can take a few minutes; anything past this is stuck.
const engineTimeout = 10 * time.Minute

var asrCmd = &cobra.Command{
	Use:   "asr",
	Short: "Speech recognition stage",
}

var asrWorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume the asr queue and persist transcripts",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.ASR.EngineCmd) == 0 {
			return fmt.Errorf("asr.engine_cmd is not configured")
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

		analyser, err := worker.NewExecAnalyser(queue.TaskASRTranscribe, worker.NeedsAudio, cfg.ASR.EngineCmd, engineTimeout)
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		metrics := observability.NewStageMetrics(reg, queue.QueueASR)
		if srv := observability.ServeMetrics(reg, cfg.ASR.MetricsPort); srv != nil {
			defer srv.Close()
		}

		w := worker.NewASRWorker(
			r.Segments, r.Transcripts, r.Embeddings,
			client, analyser, nlp.NormalizeArabic,
			metrics, logger, cfg.Storage.DataRoot,
		)

		srv, err := queue.NewServer(cfg.Redis, queue.ServerOptions{
			Queue:       queue.QueueASR,
			Concurrency: cfg.ASR.Concurrency,
			RetryDelay:  cfg.ASR.RetryDelay,
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

var asrPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Enqueue a round-trip probe onto the asr queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		client, err := newQueueClient(ctx, cfg, slog.Default())
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.EnqueuePing(ctx); err != nil {
			return err
		}
		fmt.Println("ping enqueued")
		return nil
	},
}

var asrEnqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Run one scheduler pass for segments missing transcripts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSchedulerPass(cmd, scheduler.NewASRScheduler)
	},
}

var asrSchedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Continuously enqueue segments missing transcripts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSchedulerLoop(cmd, scheduler.NewASRScheduler)
	},
}

func init() {
	rootCmd.AddCommand(asrCmd)
	asrCmd.AddCommand(asrWorkerCmd, asrPingCmd, asrEnqueueCmd, asrSchedulerCmd)

	addSchedulerFlags(asrEnqueueCmd)
	addSchedulerFlags(asrSchedulerCmd)
}
