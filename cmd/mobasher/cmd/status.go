package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/repository"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline health: store, broker, supervisors and per-channel stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		// Store.
		db, err := openDatabase(ctx, cfg, logger)
		if err != nil {
			fmt.Printf("database:  unreachable (%v)\n", err)
			return err
		}
		defer db.Close()
		fmt.Printf("database:  ok (%s)\n", db.Driver())

		// Broker.
		if client, err := newQueueClient(ctx, cfg, logger); err != nil {
			fmt.Printf("broker:    unreachable (%v)\n", err)
		} else {
			fmt.Println("broker:    ok")
			client.Close()
		}

		// Supervisors.
		for _, role := range []string{"recorder", "archive"} {
			pidfiles, err := listPIDFiles(cfg, role)
			if err != nil {
				continue
			}
			fmt.Printf("%s: %d supervisor(s) registered\n", role, len(pidfiles))
		}

		// Active recordings.
		recordings := repository.NewRecordingRepository(db.DB)
		running, err := recordings.List(ctx, repository.RecordingFilter{
			Status: models.RecordingStatusRunning,
			Limit:  100,
		})
		if err == nil {
			fmt.Printf("recordings: %d running\n", len(running))
		}

		// Per-channel aggregates.
		channelRepo := repository.NewChannelRepository(db.DB)
		channels, err := channelRepo.List(ctx, false, 500, 0)
		if err != nil {
			return err
		}
		if len(channels) == 0 {
			return nil
		}
		fmt.Printf("\n%-20s %-10s %-12s %-12s %s\n", "CHANNEL", "ACTIVE", "SEGMENTS", "TRANSCRIBED", "LAST SEGMENT")
		for _, ch := range channels {
			stats, err := channelRepo.Stats(ctx, ch.ID)
			if err != nil || stats == nil {
				fmt.Printf("%-20s %-10t %-12s %-12s -\n", ch.ID, ch.Active, "?", "?")
				continue
			}
			last := "-"
			if stats.LastSegmentTime != nil {
				last = stats.LastSegmentTime.UTC().Format(time.RFC3339)
			}
			fmt.Printf("%-20s %-10t %-12d %-12d %s\n",
				ch.ID, ch.Active, stats.TotalSegments, stats.TranscribedSegments, last)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
