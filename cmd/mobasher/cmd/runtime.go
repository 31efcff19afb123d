package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/mobasher/mobasher/internal/config"
	"github.com/mobasher/mobasher/internal/database"
	"github.com/mobasher/mobasher/internal/database/migrations"
	"github.com/mobasher/mobasher/internal/queue"
	"github.com/mobasher/mobasher/internal/repository"
	"github.com/mobasher/mobasher/internal/storage"
)

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// openDatabase connects and brings the schema up to date.
func openDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*database.DB, error) {
	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if err := migrator.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing migrations: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return db, nil
}

// repos bundles every repository over one connection.
type repos struct {
	Channels      repository.ChannelRepository
	Recordings    repository.RecordingRepository
	Segments      repository.SegmentRepository
	Transcripts   repository.TranscriptRepository
	Embeddings    repository.EmbeddingRepository
	VisualEvents  repository.VisualEventRepository
	Entities      repository.EntityRepository
	Alerts        repository.AlertRepository
	SystemMetrics repository.SystemMetricRepository
}

func newRepos(db *database.DB) *repos {
	return &repos{
		Channels:      repository.NewChannelRepository(db.DB),
		Recordings:    repository.NewRecordingRepository(db.DB),
		Segments:      repository.NewSegmentRepository(db.DB),
		Transcripts:   repository.NewTranscriptRepository(db.DB),
		Embeddings:    repository.NewEmbeddingRepository(db.DB),
		VisualEvents:  repository.NewVisualEventRepository(db.DB),
		Entities:      repository.NewEntityRepository(db.DB),
		Alerts:        repository.NewAlertRepository(db.DB),
		SystemMetrics: repository.NewSystemMetricRepository(db.DB),
	}
}

// newQueueClient connects the enqueue/dedupe client to the broker.
func newQueueClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*queue.Client, error) {
	client, err := queue.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}
	return client, nil
}

// layoutFor builds the on-disk layout for one channel under the data root.
func layoutFor(cfg *config.Config, ch *config.ChannelConfig) *storage.Layout {
	dateFolders := true
	if ch.Storage.DateFolders != nil {
		dateFolders = *ch.Storage.DateFolders
	}
	return &storage.Layout{
		DataRoot:    cfg.Storage.DataRoot,
		ChannelID:   ch.ID,
		DateFolders: dateFolders,
		Directories: ch.Storage.Directories,
	}
}

// loadChannels reads channel descriptors, restricted to ids when given.
func loadChannels(cfg *config.Config, ids []string) ([]*config.ChannelConfig, error) {
	channels, err := config.LoadChannelDir(cfg.Storage.ChannelsDir)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		if len(channels) == 0 {
			return nil, fmt.Errorf("no channel descriptors in %s", cfg.Storage.ChannelsDir)
		}
		return channels, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var picked []*config.ChannelConfig
	for _, ch := range channels {
		if want[ch.ID] {
			picked = append(picked, ch)
			delete(want, ch.ID)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for id := range want {
			missing = append(missing, id)
		}
		return nil, fmt.Errorf("unknown channel(s): %s", strings.Join(missing, ", "))
	}
	return picked, nil
}

// pidfilePath names the pidfile for one supervisor role and channel.
func pidfilePath(cfg *config.Config, role, channelID string) string {
	dir := cfg.Recorder.PIDDir
	if dir == "" {
		dir = filepath.Join(cfg.Storage.DataRoot, "run")
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s.pid", role, channelID))
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}
	return pid, nil
}

// listPIDFiles returns the pidfiles for one role, keyed by channel id.
func listPIDFiles(cfg *config.Config, role string) (map[string]string, error) {
	dir := cfg.Recorder.PIDDir
	if dir == "" {
		dir = filepath.Join(cfg.Storage.DataRoot, "run")
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	prefix := role + "-"
	found := make(map[string]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".pid") {
			continue
		}
		channelID := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".pid")
		found[channelID] = filepath.Join(dir, name)
	}
	return found, nil
}
