package cmd

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/mobasher/mobasher/internal/api"
	"github.com/mobasher/mobasher/internal/observability"
	"github.com/mobasher/mobasher/internal/version"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Read API over the pipeline store",
}

var apiServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read API and metrics endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("host") {
			cfg.API.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			cfg.API.Port, _ = cmd.Flags().GetInt("port")
		}

		ctx, stop := signalContext()
		defer stop()

		db, err := openDatabase(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		r := newRepos(db)

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics := observability.NewAPIMetrics(reg)

		srv := api.NewServer(cfg.API, api.Repositories{
			Channels:     r.Channels,
			Recordings:   r.Recordings,
			Segments:     r.Segments,
			Transcripts:  r.Transcripts,
			VisualEvents: r.VisualEvents,
		}, reg, metrics, logger, version.Short())

		return srv.ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(apiCmd)
	apiCmd.AddCommand(apiServeCmd)

	apiServeCmd.Flags().String("host", "", "host to bind to (overrides config)")
	apiServeCmd.Flags().Int("port", 0, "port to listen on (overrides config)")
}
