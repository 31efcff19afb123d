package cmd

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mobasher/mobasher/internal/nlp"
	"github.com/mobasher/mobasher/internal/observability"
	"github.com/mobasher/mobasher/internal/queue"
	"github.com/mobasher/mobasher/internal/scheduler"
	"github.com/mobasher/mobasher/internal/worker"
)

var nlpCmd = &cobra.Command{
	Use:   "nlp",
	Short: "Dictionary entity and alert stage",
}

var nlpWorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume the nlp queue and persist entities and alerts",
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
		r := newRepos(db)

		client, err := newQueueClient(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer client.Close()

		entityIndex, err := loadPhraseIndex(cfg.NLP.EntitiesDir, nlp.LoadEntityDictionaries, logger, "entities")
		if err != nil {
			return err
		}
		alertIndex, err := loadPhraseIndex(cfg.NLP.AlertsDir, nlp.LoadAlertDictionaries, logger, "alerts")
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		metrics := observability.NewStageMetrics(reg, queue.QueueNLP)
		if srv := observability.ServeMetrics(reg, cfg.NLP.MetricsPort); srv != nil {
			defer srv.Close()
		}

		w := worker.NewNLPWorker(
			r.Segments, r.Transcripts, r.Entities, r.Alerts,
			client, entityIndex, alertIndex, metrics, logger,
		)

		srv, err := queue.NewServer(cfg.Redis, queue.ServerOptions{
			Queue:       queue.QueueNLP,
			Concurrency: cfg.NLP.Concurrency,
			RetryDelay:  cfg.NLP.RetryDelay,
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

var nlpEnqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Run one scheduler pass for transcripts missing entities",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSchedulerPass(cmd, scheduler.NewNLPScheduler)
	},
}

var nlpSchedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Continuously enqueue transcripts missing entities",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSchedulerLoop(cmd, scheduler.NewNLPScheduler)
	},
}

func init() {
	rootCmd.AddCommand(nlpCmd)
	nlpCmd.AddCommand(nlpWorkerCmd, nlpEnqueueCmd, nlpSchedulerCmd)

	addSchedulerFlags(nlpEnqueueCmd)
	addSchedulerFlags(nlpSchedulerCmd)
}

// loadPhraseIndex builds one dictionary index; an unconfigured directory
// yields an empty index so deployments can run with only one of the two
// dictionary sets.
func loadPhraseIndex(dir string, load func(string) ([]nlp.Dictionary, error), logger *slog.Logger, kind string) (*nlp.PhraseIndex, error) {
	if dir == "" {
		return nlp.NewPhraseIndex(nil), nil
	}
	dicts, err := load(dir)
	if err != nil {
		return nil, fmt.Errorf("loading %s dictionaries: %w", kind, err)
	}
	logger.Info("dictionaries loaded", slog.String("kind", kind), slog.Int("count", len(dicts)))
	return nlp.NewPhraseIndex(dicts), nil
}
