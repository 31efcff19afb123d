package cmd

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/cobra"

	"github.com/mobasher/mobasher/internal/config"
	"github.com/mobasher/mobasher/internal/ffmpeg"
	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/observability"
	"github.com/mobasher/mobasher/internal/recorder"
)

var recorderCmd = &cobra.Command{
	Use:   "recorder",
	Short: "Manage per-channel capture supervisors (audio + video legs)",
}

var recorderStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start capture supervisors in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		channelIDs, _ := cmd.Flags().GetStringSlice("channel")
		metricsPort, _ := cmd.Flags().GetInt("metrics-port")
		return runSupervisors("recorder", channelIDs, metricsPort)
	},
}

var recorderStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop running capture supervisors",
	RunE: func(cmd *cobra.Command, args []string) error {
		channelIDs, _ := cmd.Flags().GetStringSlice("channel")
		return stopSupervisors("recorder", channelIDs)
	},
}

var recorderStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which capture supervisors are running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return supervisorStatus("recorder")
	},
}

var recorderLogsCmd = &cobra.Command{
	Use:   "logs <channel-id>",
	Short: "Print the tail of a channel's capture logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		legName, _ := cmd.Flags().GetString("leg")
		lines, _ := cmd.Flags().GetInt("lines")
		return printSupervisorLogs(args[0], legName, lines)
	},
}

func init() {
	rootCmd.AddCommand(recorderCmd)
	recorderCmd.AddCommand(recorderStartCmd, recorderStopCmd, recorderStatusCmd, recorderLogsCmd)

	recorderStartCmd.Flags().StringSlice("channel", nil, "channel id(s) to capture (default all descriptors)")
	recorderStartCmd.Flags().Int("metrics-port", 0, "expose recorder metrics on this port (0 = off)")
	recorderStopCmd.Flags().StringSlice("channel", nil, "channel id(s) to stop (default all)")
	recorderLogsCmd.Flags().String("leg", "", "leg to show (audio, video, archive; default all)")
	recorderLogsCmd.Flags().Int("lines", 50, "lines to print per leg")
}

// runSupervisors captures all requested channels until SIGINT/SIGTERM.
// role selects which legs run: "recorder" runs the processing legs,
// "archive" only the hour-aligned archive leg.
func runSupervisors(role string, channelIDs []string, metricsPort int) error {
	logger := slog.Default()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	channels, err := loadChannels(cfg, channelIDs)
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

	bins, err := ffmpeg.NewBinaryDetector(cfg.Recorder.FFmpegPath, cfg.Recorder.FFprobePath).Detect(ctx)
	if err != nil {
		return fmt.Errorf("locating ffmpeg: %w", err)
	}
	prober := ffmpeg.NewProber(bins.FFprobePath)

	// Channels on encoder "auto" share one hardware probe per process.
	h264 := ""
	for _, ch := range channels {
		if autoEncoder(ch) {
			h264 = ffmpeg.NewEncoderDetector(bins.FFmpegPath).SelectH264(ctx)
			logger.Info("selected h264 encoder", slog.String("encoder", h264))
			break
		}
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewRecorderMetrics(reg)
	if srv := observability.ServeMetrics(reg, metricsPort); srv != nil {
		defer srv.Close()
	}

	// Any recording left "running" by a crashed supervisor is stale now.
	if n, err := r.Recordings.MarkStaleRunning(ctx, time.Now().UTC()); err == nil && n > 0 {
		logger.Warn("failed stale recordings from a previous run", slog.Int64("count", n))
	}

	var wg sync.WaitGroup
	for _, ch := range channels {
		ch := restrictLegs(ch, role)
		if autoEncoder(ch) {
			ch.Video.Encoder = h264
		}
		if err := r.Channels.Upsert(ctx, &models.Channel{
			ID:          ch.ID,
			Name:        ch.Name,
			Description: ch.Description,
			URL:         ch.Input.URL,
			Headers:     headerMap(ch.Input.Headers),
			Active:      true,
		}); err != nil {
			return fmt.Errorf("registering channel %s: %w", ch.ID, err)
		}

		layout := layoutFor(cfg, ch)
		detector := recorder.NewDetector(ch, layout, prober, r.Segments, metrics, logger)
		sup := recorder.NewSupervisor(ch, cfg.Recorder, bins.FFmpegPath, layout, detector, r.Recordings, metrics, logger).
			WithSystemMetrics(r.SystemMetrics)

		pidfile := pidfilePath(cfg, role, ch.ID)
		if err := writePIDFile(pidfile); err != nil {
			return fmt.Errorf("writing pidfile: %w", err)
		}
		defer os.Remove(pidfile)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sup.Run(ctx); err != nil {
				logger.Error("supervisor exited",
					slog.String("channel_id", ch.ID),
					slog.String("error", err.Error()))
			}
		}()
	}

	logger.Info("capture running", slog.String("role", role), slog.Int("channels", len(channels)))
	<-ctx.Done()
	wg.Wait()
	return nil
}

// autoEncoder reports whether the channel leaves encoder choice to probing.
func autoEncoder(ch *config.ChannelConfig) bool {
	return ch.Video.Encoder == "" || ch.Video.Encoder == "auto"
}

// restrictLegs copies the channel config with only the legs this role owns.
func restrictLegs(ch *config.ChannelConfig, role string) *config.ChannelConfig {
	out := *ch
	rec := ch.Recording
	off := false
	switch role {
	case "archive":
		rec.AudioEnabled = &off
		rec.VideoEnabled = &off
	default:
		rec.ArchiveEnabled = &off
	}
	out.Recording = rec
	return &out
}

// stopSupervisors signals running supervisors via their pidfiles and waits
// for them to exit.
func stopSupervisors(role string, channelIDs []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pidfiles, err := listPIDFiles(cfg, role)
	if err != nil {
		return err
	}
	if len(channelIDs) > 0 {
		filtered := make(map[string]string)
		for _, id := range channelIDs {
			if path, ok := pidfiles[id]; ok {
				filtered[id] = path
			}
		}
		pidfiles = filtered
	}
	if len(pidfiles) == 0 {
		fmt.Println("nothing to stop")
		return nil
	}

	for channelID, path := range pidfiles {
		pid, err := readPIDFile(path)
		if err != nil {
			fmt.Printf("%s: unreadable pidfile: %v\n", channelID, err)
			continue
		}
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			// Already gone; clean up the stale pidfile.
			os.Remove(path)
			fmt.Printf("%s: not running\n", channelID)
			continue
		}
		if waitForExit(pid, 15*time.Second) {
			os.Remove(path)
			fmt.Printf("%s: stopped\n", channelID)
		} else {
			fmt.Printf("%s: still shutting down (pid %d)\n", channelID, pid)
		}
	}
	return nil
}

func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if exists, _ := process.PidExists(int32(pid)); !exists {
			return true
		}
		time.Sleep(250 * time.Millisecond)
	}
	return false
}

// supervisorStatus prints one line per pidfile with liveness.
func supervisorStatus(role string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pidfiles, err := listPIDFiles(cfg, role)
	if err != nil {
		return err
	}
	if len(pidfiles) == 0 {
		fmt.Printf("no %s supervisors registered\n", role)
		return nil
	}
	for channelID, path := range pidfiles {
		pid, err := readPIDFile(path)
		if err != nil {
			fmt.Printf("%-20s unreadable pidfile\n", channelID)
			continue
		}
		alive, _ := process.PidExists(int32(pid))
		state := "dead"
		if alive {
			state = "running"
		}
		fmt.Printf("%-20s %-8s pid=%d\n", channelID, state, pid)
	}
	return nil
}

// printSupervisorLogs tails the per-leg capture logs for one channel.
func printSupervisorLogs(channelID, legName string, lines int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Recorder.LogDir == "" {
		return fmt.Errorf("recorder.log_dir is not configured")
	}
	legs := []string{recorder.LegAudio, recorder.LegVideo, recorder.LegArchive}
	if legName != "" {
		legs = []string{legName}
	}
	printed := 0
	for _, leg := range legs {
		path := filepath.Join(cfg.Recorder.LogDir, fmt.Sprintf("%s-%s.log", channelID, leg))
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		fmt.Printf("==> %s <==\n", path)
		os.Stdout.Write(tailLines(data, lines))
		printed++
	}
	if printed == 0 {
		return fmt.Errorf("no logs for channel %s in %s", channelID, cfg.Recorder.LogDir)
	}
	return nil
}

func tailLines(data []byte, n int) []byte {
	if n <= 0 || len(data) == 0 {
		return nil
	}
	// A trailing newline does not count as an extra line.
	end := len(data)
	if data[end-1] == '\n' {
		end--
	}
	start := end
	for i := 0; i < n; i++ {
		idx := bytes.LastIndexByte(data[:start], '\n')
		if idx < 0 {
			return data
		}
		start = idx
	}
	return data[start+1:]
}

// headerMap widens a string map into the models JSON column type.
func headerMap(h map[string]string) models.JSONMap {
	if len(h) == 0 {
		return nil
	}
	out := make(models.JSONMap, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
