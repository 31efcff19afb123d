package cmd

import (
	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage per-channel archive supervisors (hour-aligned viewing copies)",
}

var archiveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start archive supervisors in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		channelIDs, _ := cmd.Flags().GetStringSlice("channel")
		metricsPort, _ := cmd.Flags().GetInt("metrics-port")
		return runSupervisors("archive", channelIDs, metricsPort)
	},
}

var archiveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop running archive supervisors",
	RunE: func(cmd *cobra.Command, args []string) error {
		channelIDs, _ := cmd.Flags().GetStringSlice("channel")
		return stopSupervisors("archive", channelIDs)
	},
}

var archiveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which archive supervisors are running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return supervisorStatus("archive")
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveStartCmd, archiveStopCmd, archiveStatusCmd)

	archiveStartCmd.Flags().StringSlice("channel", nil, "channel id(s) to archive (default all descriptors)")
	archiveStartCmd.Flags().Int("metrics-port", 0, "expose recorder metrics on this port (0 = off)")
	archiveStopCmd.Flags().StringSlice("channel", nil, "channel id(s) to stop (default all)")
}
