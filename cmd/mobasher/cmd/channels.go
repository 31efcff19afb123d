package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mobasher/mobasher/internal/config"
	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/repository"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Manage monitored channels",
}

var channelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		activeOnly, _ := cmd.Flags().GetBool("active-only")
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

		channels, err := repository.NewChannelRepository(db.DB).List(ctx, activeOnly, 500, 0)
		if err != nil {
			return err
		}
		if len(channels) == 0 {
			fmt.Println("no channels registered")
			return nil
		}
		fmt.Printf("%-20s %-8s %-30s %s\n", "ID", "ACTIVE", "NAME", "URL")
		for _, ch := range channels {
			fmt.Printf("%-20s %-8t %-30s %s\n", ch.ID, ch.Active, ch.Name, ch.URL)
		}
		return nil
	},
}

var channelsAddCmd = &cobra.Command{
	Use:   "add <descriptor.yaml>",
	Short: "Register a channel from its YAML descriptor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := config.LoadChannel(args[0])
		if err != nil {
			return err
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

		if err := repository.NewChannelRepository(db.DB).Upsert(ctx, &models.Channel{
			ID:          ch.ID,
			Name:        ch.Name,
			Description: ch.Description,
			URL:         ch.Input.URL,
			Headers:     headerMap(ch.Input.Headers),
			Active:      true,
		}); err != nil {
			return fmt.Errorf("registering channel %s: %w", ch.ID, err)
		}
		fmt.Printf("channel %s registered\n", ch.ID)
		return nil
	},
}

var channelsEnableCmd = &cobra.Command{
	Use:   "enable <channel-id>",
	Short: "Mark a channel active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setChannelActive(args[0], true)
	},
}

var channelsDisableCmd = &cobra.Command{
	Use:   "disable <channel-id>",
	Short: "Mark a channel inactive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setChannelActive(args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(channelsCmd)
	channelsCmd.AddCommand(channelsListCmd, channelsAddCmd, channelsEnableCmd, channelsDisableCmd)

	channelsListCmd.Flags().Bool("active-only", false, "only list active channels")
}

func setChannelActive(channelID string, active bool) error {
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

	repo := repository.NewChannelRepository(db.DB)
	ch, err := repo.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if ch == nil {
		return fmt.Errorf("channel %s not found", channelID)
	}
	if err := repo.SetActive(ctx, channelID, active); err != nil {
		return err
	}
	state := "disabled"
	if active {
		state = "enabled"
	}
	fmt.Printf("channel %s %s\n", channelID, state)
	return nil
}
