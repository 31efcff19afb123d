package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// The backing services (TimescaleDB, Redis) run under docker compose; these
// subcommands are a thin passthrough so operators stay inside one tool.
var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Manage the backing store and broker containers",
}

var servicesUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the database and broker containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompose(cmd, "up", "-d")
	},
}

var servicesDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop the database and broker containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompose(cmd, "down")
	},
}

var servicesPsCmd = &cobra.Command{
	Use:   "ps",
	Short: "Show container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompose(cmd, "ps")
	},
}

func init() {
	rootCmd.AddCommand(servicesCmd)
	servicesCmd.AddCommand(servicesUpCmd, servicesDownCmd, servicesPsCmd)

	servicesCmd.PersistentFlags().String("compose-file", "docker-compose.yml", "compose file describing the backing services")
}

func runCompose(cmd *cobra.Command, composeArgs ...string) error {
	composeFile, _ := cmd.Flags().GetString("compose-file")
	if _, err := os.Stat(composeFile); err != nil {
		return fmt.Errorf("compose file %s: %w", composeFile, err)
	}
	dockerArgs := append([]string{"compose", "-f", composeFile}, composeArgs...)
	c := exec.CommandContext(cmd.Context(), "docker", dockerArgs...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.Stdin = os.Stdin
	if err := c.Run(); err != nil {
		return fmt.Errorf("docker compose %s: %w", composeArgs[0], err)
	}
	return nil
}
