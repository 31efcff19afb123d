package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		API: APIConfig{Port: 8010},
		Database: DatabaseConfig{
			Driver:       "postgres",
			Host:         "localhost",
			Port:         5432,
			Name:         "mobasher",
			User:         "mobasher",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 10,
			LogLevel:     "warn",
		},
		Redis:   RedisConfig{URL: "redis://localhost:6379/0"},
		Storage: StorageConfig{DataRoot: "./data"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Recorder: RecorderConfig{
			HeartbeatSeconds:   10,
			MaxRestartsPerHour: 5,
			StopGrace:          10 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Interval:        30 * time.Second,
			LookbackMinutes: 10,
			EnqueueBatch:    200,
		},
		ASR: ASRConfig{Device: "cpu"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	// Load without config file should use defaults
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// API defaults
	assert.Equal(t, "0.0.0.0", cfg.API.Host)
	assert.Equal(t, 8010, cfg.API.Port)
	assert.Equal(t, 30*time.Second, cfg.API.ReadTimeout)

	// Database defaults
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "mobasher", cfg.Database.Name)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)

	// Redis defaults
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)

	// Storage defaults
	assert.Equal(t, "./data", cfg.Storage.DataRoot)
	assert.Empty(t, cfg.Storage.ScreenshotRoot)

	// Recorder defaults
	assert.Equal(t, 10, cfg.Recorder.HeartbeatSeconds)
	assert.Equal(t, 5, cfg.Recorder.MaxRestartsPerHour)
	assert.Equal(t, 10*time.Second, cfg.Recorder.StopGrace)

	// Scheduler defaults
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 10, cfg.Scheduler.LookbackMinutes)
	assert.Equal(t, 200, cfg.Scheduler.EnqueueBatch)

	// ASR defaults
	assert.Equal(t, "large-v3", cfg.ASR.ModelName)
	assert.Equal(t, "cpu", cfg.ASR.Device)
	assert.Equal(t, 5, cfg.ASR.BeamSize)
	assert.True(t, cfg.ASR.VADFilter)
	assert.False(t, cfg.ASR.ConditionOnPrev)

	// Vision defaults
	assert.InDelta(t, 3.0, cfg.Vision.OCRFPS, 0.001)
	assert.InDelta(t, 0.60, cfg.Vision.OCRTextSimThresh, 0.001)
	assert.InDelta(t, 0.30, cfg.Vision.OCRIoUThresh, 0.001)

	// Retention defaults
	assert.Equal(t, 365, cfg.Retention.TranscriptsDays)
	assert.Equal(t, 30, cfg.Retention.ScreenshotsDays)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
api:
  host: "127.0.0.1"
  port: 9090

database:
  host: "db.internal"
  port: 5433
  name: "mobasher_test"
  password: "secret"

storage:
  data_root: "/srv/mobasher/data"
  screenshot_root: "/srv/mobasher/screens"

asr:
  model_name: "medium"
  device: "cuda"
  beam_size: 3
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.API.Host)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "mobasher_test", cfg.Database.Name)
	assert.Equal(t, "/srv/mobasher/data", cfg.Storage.DataRoot)
	assert.Equal(t, "/srv/mobasher/screens", cfg.Storage.ScreenshotRoot)
	assert.Equal(t, "medium", cfg.ASR.ModelName)
	assert.Equal(t, "cuda", cfg.ASR.Device)
	assert.Equal(t, 3, cfg.ASR.BeamSize)

	// Unset keys keep their defaults.
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 200, cfg.Scheduler.EnqueueBatch)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MOBASHER_API_PORT", "8099")
	t.Setenv("MOBASHER_DATABASE_HOST", "envhost")
	t.Setenv("MOBASHER_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8099, cfg.API.Port)
	assert.Equal(t, "envhost", cfg.Database.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_LegacyEnvNames(t *testing.T) {
	t.Setenv("DB_HOST", "legacy-db")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("REDIS_URL", "redis://legacy:6379/2")
	t.Setenv("ASR_MODEL", "small")
	t.Setenv("MOBASHER_DATA_ROOT", "/legacy/data")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "legacy-db", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "redis://legacy:6379/2", cfg.Redis.URL)
	assert.Equal(t, "small", cfg.ASR.ModelName)
	assert.Equal(t, "/legacy/data", cfg.Storage.DataRoot)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid api port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "invalid database driver",
			mutate:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: "database.driver",
		},
		{
			name: "sqlite requires dsn",
			mutate: func(c *Config) {
				c.Database.Driver = "sqlite"
				c.Database.DSN = ""
			},
			wantErr: "database.dsn",
		},
		{
			name: "missing redis",
			mutate: func(c *Config) {
				c.Redis.URL = ""
				c.Redis.Addr = ""
			},
			wantErr: "redis",
		},
		{
			name:    "missing data root",
			mutate:  func(c *Config) { c.Storage.DataRoot = "" },
			wantErr: "data_root",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: "logging.level",
		},
		{
			name:    "heartbeat too small",
			mutate:  func(c *Config) { c.Recorder.HeartbeatSeconds = 2 },
			wantErr: "heartbeat_seconds",
		},
		{
			name:    "invalid asr device",
			mutate:  func(c *Config) { c.ASR.Device = "tpu" },
			wantErr: "asr.device",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDatabaseConfig_BuildDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:    "localhost",
		Port:    5432,
		Name:    "mobasher",
		User:    "app",
		SSLMode: "disable",
	}
	assert.Equal(t, "host=localhost port=5432 dbname=mobasher user=app sslmode=disable", cfg.BuildDSN())

	cfg.Password = "pw"
	cfg.Schema = "mobasher"
	dsn := cfg.BuildDSN()
	assert.Contains(t, dsn, "password=pw")
	assert.Contains(t, dsn, "search_path=mobasher")

	cfg.DSN = "host=other dbname=x"
	assert.Equal(t, "host=other dbname=x", cfg.BuildDSN())
}
