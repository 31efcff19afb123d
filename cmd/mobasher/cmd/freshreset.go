package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mobasher/mobasher/internal/config"
	"github.com/mobasher/mobasher/internal/retention"
	"github.com/mobasher/mobasher/internal/storage"
)

var freshresetCmd = &cobra.Command{
	Use:   "freshreset",
	Short: "Wipe the pipeline back to a clean slate",
	Long: `Stop lingering transcoder children, flush the broker, truncate the
derived tables and delete per-date media directories. Refuses to run
without --yes; refusal exits with code 2.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		includeChannels, _ := cmd.Flags().GetBool("include-channels")
		todayOnly, _ := cmd.Flags().GetBool("today-only")
		if !yes {
			fmt.Println("refusing to reset without --yes")
			return retention.ErrNotConfirmed
		}

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

		// A dead broker must not block the reset; the flush is then skipped.
		var flusher retention.QueueFlusher
		if client, err := newQueueClient(ctx, cfg, logger); err != nil {
			logger.Warn("broker unreachable, skipping queue flush", slog.String("error", err.Error()))
		} else {
			defer client.Close()
			flusher = client
		}

		screenshotRoot := storage.ScreenshotRoot(cfg.Storage.ScreenshotRoot, cfg.Storage.DataRoot)
		resetter := retention.NewResetter(db.DB, flusher, cfg.Storage.DataRoot, screenshotRoot, logger).
			WithMetricsPorts(metricsPorts(cfg))
		if err := resetter.Run(ctx, retention.ResetOptions{
			Confirmed:       true,
			IncludeChannels: includeChannels,
			TodayOnly:       todayOnly,
		}); err != nil {
			return err
		}
		fmt.Println("pipeline reset")
		return nil
	},
}

// metricsPorts collects the configured worker metrics ports so the reset can
// free them for whatever starts next.
func metricsPorts(cfg *config.Config) []int {
	var ports []int
	for _, p := range []int{cfg.ASR.MetricsPort, cfg.Vision.MetricsPort, cfg.NLP.MetricsPort} {
		if p > 0 {
			ports = append(ports, p)
		}
	}
	return ports
}

var killMinionsCmd = &cobra.Command{
	Use:   "kill-the-minions",
	Short: "Terminate stray transcoder children left by crashed supervisors",
	RunE: func(cmd *cobra.Command, args []string) error {
		marker, _ := cmd.Flags().GetString("marker")
		ctx, stop := signalContext()
		defer stop()
		n, err := retention.KillMarkedProcesses(ctx, marker, slog.Default())
		if err != nil {
			return err
		}
		fmt.Printf("signalled %d process(es)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(freshresetCmd, killMinionsCmd)

	freshresetCmd.Flags().Bool("yes", false, "confirm the reset")
	freshresetCmd.Flags().Bool("include-channels", false, "also truncate the channels table")
	freshresetCmd.Flags().Bool("today-only", false, "only wipe today's media directories")

	killMinionsCmd.Flags().String("marker", "Mobasher/1.0", "cmdline marker identifying our transcoder children")
}
