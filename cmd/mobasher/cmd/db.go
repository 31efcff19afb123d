package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mobasher/mobasher/internal/retention"
	"github.com/mobasher/mobasher/internal/storage"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		db, err := openDatabase(ctx, cfg, slog.Default())
		if err != nil {
			return err
		}
		defer db.Close()
		fmt.Println("database schema up to date")
		return nil
	},
}

var dbTruncateCmd = &cobra.Command{
	Use:   "truncate",
	Short: "Truncate all derived tables",
	Long: `Truncate recordings, segments, transcripts, embeddings, visual events,
entities, alerts and system metrics. Refuses to run without --yes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		includeChannels, _ := cmd.Flags().GetBool("include-channels")
		if !yes {
			fmt.Println("refusing to truncate without --yes")
			return retention.ErrNotConfirmed
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		db, err := openDatabase(ctx, cfg, slog.Default())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := retention.TruncateTables(ctx, db.DB, includeChannels); err != nil {
			return fmt.Errorf("truncating tables: %w", err)
		}
		fmt.Println("derived tables truncated")
		return nil
	},
}

var dbRetentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Prune derived rows and screenshots past their retention windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		asCron, _ := cmd.Flags().GetBool("cron")

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

		screenshotRoot := storage.ScreenshotRoot(cfg.Storage.ScreenshotRoot, cfg.Storage.DataRoot)
		runner := retention.NewRunner(db.DB, cfg.Retention, screenshotRoot, logger)

		if asCron {
			if err := runner.StartCron(ctx); err != nil {
				return err
			}
			defer runner.StopCron()
			logger.Info("retention cron running", slog.String("schedule", cfg.Retention.Cron))
			<-ctx.Done()
			return nil
		}

		report, err := runner.Run(ctx, dryRun)
		if err != nil {
			return fmt.Errorf("running retention: %w", err)
		}
		for _, t := range report.Tables {
			fmt.Printf("%-20s %d rows\n", t.Table, t.Rows)
		}
		fmt.Printf("%-20s %d files\n", "screenshots", report.Screenshots)
		if dryRun {
			fmt.Println("dry run: nothing deleted")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd, dbTruncateCmd, dbRetentionCmd)

	dbTruncateCmd.Flags().Bool("yes", false, "confirm the truncate")
	dbTruncateCmd.Flags().Bool("include-channels", false, "also truncate the channels table")
	dbRetentionCmd.Flags().Bool("dry-run", false, "count prunable rows without deleting")
	dbRetentionCmd.Flags().Bool("cron", false, "keep running on the configured retention.cron schedule")
}
