// Package config provides configuration management for mobasher using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultAPIPort            = 8010
	defaultServerTimeout      = 30 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultMaxOpenConns       = 25
	defaultMaxIdleConns       = 10
	defaultConnMaxIdleTime    = 30 * time.Minute
	defaultHeartbeatSeconds   = 10
	defaultMaxRestartsPerHour = 5
	defaultStopGrace          = 10 * time.Second
	defaultSchedulerInterval  = 30 * time.Second
	defaultSchedulerMaxWait   = 5 * time.Minute
	defaultLookbackMinutes    = 10
	defaultDedupeTTL          = 10 * time.Minute
	defaultEnqueueBatch       = 200
	defaultWorkerRetryDelay   = 10 * time.Second
	defaultRetainDays         = 365
)

// Config holds all configuration for the application.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Recorder  RecorderConfig  `mapstructure:"recorder"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	ASR       ASRConfig       `mapstructure:"asr"`
	Vision    VisionConfig    `mapstructure:"vision"`
	NLP       NLPConfig       `mapstructure:"nlp"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// APIConfig holds HTTP server configuration.
type APIConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the API listen address in host:port format.
func (c *APIConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, sqlite
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	Schema          string        `mapstructure:"schema"`
	DSN             string        `mapstructure:"dsn"` // overrides the discrete fields when set
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// BuildDSN returns the connection string, assembling one from the discrete
// fields when the dsn key is not set explicitly.
func (c *DatabaseConfig) BuildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.SSLMode)
	if c.Password != "" {
		dsn += " password=" + c.Password
	}
	if c.Schema != "" {
		dsn += " search_path=" + c.Schema
	}
	return dsn
}

// RedisConfig holds broker connection configuration.
type RedisConfig struct {
	URL      string `mapstructure:"url"` // redis://host:port/db, takes precedence
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig holds media storage configuration.
type StorageConfig struct {
	// DataRoot is the root of the audio/video/archive trees.
	DataRoot string `mapstructure:"data_root"`
	// ScreenshotRoot is where vision workers write frame captures.
	// Empty means {data_root}/screenshot.
	ScreenshotRoot string `mapstructure:"screenshot_root"`
	// ChannelsDir holds the per-channel YAML descriptors.
	ChannelsDir string `mapstructure:"channels_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// RecorderConfig holds capture supervisor configuration.
type RecorderConfig struct {
	HeartbeatSeconds   int           `mapstructure:"heartbeat_seconds"`
	MaxRestartsPerHour int           `mapstructure:"max_restarts_per_hour"`
	StopGrace          time.Duration `mapstructure:"stop_grace"`
	FFmpegPath         string        `mapstructure:"ffmpeg_path"`  // empty = discover on PATH
	FFprobePath        string        `mapstructure:"ffprobe_path"` // empty = discover on PATH
	PIDDir             string        `mapstructure:"pid_dir"`
	LogDir             string        `mapstructure:"log_dir"`
}

// SchedulerConfig holds stage scheduler configuration.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	LookbackMinutes int           `mapstructure:"lookback_minutes"`
	DedupeTTL       time.Duration `mapstructure:"dedupe_ttl"`
	EnqueueBatch    int           `mapstructure:"enqueue_batch"`
}

// ASRConfig holds speech recognition worker configuration.
type ASRConfig struct {
	// EngineCmd is the external transcription engine command line; the
	// worker passes segment context through the environment.
	EngineCmd       []string      `mapstructure:"engine_cmd"`
	ModelName       string        `mapstructure:"model_name"`
	Device          string        `mapstructure:"device"` // cpu|cuda|mps
	BeamSize        int           `mapstructure:"beam_size"`
	VADFilter       bool          `mapstructure:"vad_filter"`
	WordTimestamps  bool          `mapstructure:"word_timestamps"`
	ConditionOnPrev bool          `mapstructure:"condition_on_previous"`
	InitialPrompt   string        `mapstructure:"initial_prompt"`
	Language        string        `mapstructure:"language"`
	Concurrency     int           `mapstructure:"concurrency"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	MetricsPort     int           `mapstructure:"metrics_port"`
}

// VisionConfig holds vision worker configuration.
type VisionConfig struct {
	// EngineCmd is the external vision engine command line, shared by the
	// OCR, object, face and screenshot tasks.
	EngineCmd        []string      `mapstructure:"engine_cmd"`
	OCRFPS           float64       `mapstructure:"ocr_fps"`
	OCRLang          string        `mapstructure:"ocr_lang"`
	OCRWriteRaw      bool          `mapstructure:"ocr_write_raw"`
	OCRTextSimThresh float64       `mapstructure:"ocr_text_sim_threshold"`
	OCRIoUThresh     float64       `mapstructure:"ocr_iou_threshold"`
	OCRMergeWindow   time.Duration `mapstructure:"ocr_merge_window"`
	Concurrency      int           `mapstructure:"concurrency"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	MetricsPort      int           `mapstructure:"metrics_port"`
}

// NLPConfig holds dictionary matching worker configuration.
type NLPConfig struct {
	EntitiesDir string        `mapstructure:"entities_dir"`
	AlertsDir   string        `mapstructure:"alerts_dir"`
	Concurrency int           `mapstructure:"concurrency"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	MetricsPort int           `mapstructure:"metrics_port"`
}

// RetentionConfig holds pruning configuration.
type RetentionConfig struct {
	TranscriptsDays int    `mapstructure:"transcripts_days"`
	EmbeddingsDays  int    `mapstructure:"embeddings_days"`
	EntitiesDays    int    `mapstructure:"entities_days"`
	AlertsDays      int    `mapstructure:"alerts_days"`
	ScreenshotsDays int    `mapstructure:"screenshots_days"`
	Cron            string `mapstructure:"cron"` // empty = no scheduled sweep
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with MOBASHER_, with underscores for nesting.
// Example: MOBASHER_API_PORT=8010.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/mobasher")
		v.AddConfigPath("$HOME/.mobasher")
	}

	v.SetEnvPrefix("MOBASHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindLegacyEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// bindLegacyEnv maps the original deployment's environment variables onto
// viper keys so existing .env files keep working.
func bindLegacyEnv(v *viper.Viper) {
	pairs := map[string]string{
		"api.host":                  "API_HOST",
		"api.port":                  "API_PORT",
		"database.host":             "DB_HOST",
		"database.port":             "DB_PORT",
		"database.name":             "DB_NAME",
		"database.user":             "DB_USER",
		"database.password":         "DB_PASSWORD",
		"database.sslmode":          "DB_SSLMODE",
		"database.schema":           "DB_SCHEMA",
		"redis.url":                 "REDIS_URL",
		"storage.data_root":         "MOBASHER_DATA_ROOT",
		"storage.screenshot_root":   "MOBASHER_SCREENSHOT_ROOT",
		"asr.model_name":            "ASR_MODEL",
		"asr.device":                "ASR_DEVICE",
		"asr.beam_size":             "ASR_BEAM",
		"asr.vad_filter":            "ASR_VAD",
		"asr.word_timestamps":       "ASR_WORD_TS",
		"asr.condition_on_previous": "ASR_COND_PREV",
		"asr.initial_prompt":        "ASR_INITIAL_PROMPT",
		"asr.metrics_port":          "ASR_METRICS_PORT",
		"vision.metrics_port":       "VISION_METRICS_PORT",
		"nlp.metrics_port":          "NLP_METRICS_PORT",
		"nlp.entities_dir":          "ENTITIES_DICTIONARIES_DIR",
		"nlp.alerts_dir":            "ALERTS_DICTIONARIES_DIR",
	}
	for key, env := range pairs {
		_ = v.BindEnv(key, env)
	}
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("api.read_timeout", defaultServerTimeout)
	v.SetDefault("api.write_timeout", defaultServerTimeout)
	v.SetDefault("api.shutdown_timeout", defaultShutdownTimeout)

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "mobasher")
	v.SetDefault("database.user", "mobasher")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.schema", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Redis defaults
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Storage defaults
	v.SetDefault("storage.data_root", "./data")
	v.SetDefault("storage.screenshot_root", "")
	v.SetDefault("storage.channels_dir", "./channels")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Recorder defaults
	v.SetDefault("recorder.heartbeat_seconds", defaultHeartbeatSeconds)
	v.SetDefault("recorder.max_restarts_per_hour", defaultMaxRestartsPerHour)
	v.SetDefault("recorder.stop_grace", defaultStopGrace)
	v.SetDefault("recorder.ffmpeg_path", "")
	v.SetDefault("recorder.ffprobe_path", "")
	v.SetDefault("recorder.pid_dir", "./run")
	v.SetDefault("recorder.log_dir", "./logs")

	// Scheduler defaults
	v.SetDefault("scheduler.interval", defaultSchedulerInterval)
	v.SetDefault("scheduler.max_interval", defaultSchedulerMaxWait)
	v.SetDefault("scheduler.lookback_minutes", defaultLookbackMinutes)
	v.SetDefault("scheduler.dedupe_ttl", defaultDedupeTTL)
	v.SetDefault("scheduler.enqueue_batch", defaultEnqueueBatch)

	// ASR defaults
	v.SetDefault("asr.engine_cmd", []string{})
	v.SetDefault("asr.model_name", "large-v3")
	v.SetDefault("asr.device", "cpu")
	v.SetDefault("asr.beam_size", 5)
	v.SetDefault("asr.vad_filter", true)
	v.SetDefault("asr.word_timestamps", true)
	v.SetDefault("asr.condition_on_previous", false)
	v.SetDefault("asr.initial_prompt", "")
	v.SetDefault("asr.language", "ar")
	v.SetDefault("asr.concurrency", 1)
	v.SetDefault("asr.retry_delay", defaultWorkerRetryDelay)
	v.SetDefault("asr.metrics_port", 0)

	// Vision defaults
	v.SetDefault("vision.engine_cmd", []string{})
	v.SetDefault("vision.ocr_fps", 3.0)
	v.SetDefault("vision.ocr_lang", "ar")
	v.SetDefault("vision.ocr_write_raw", false)
	v.SetDefault("vision.ocr_text_sim_threshold", 0.60)
	v.SetDefault("vision.ocr_iou_threshold", 0.30)
	v.SetDefault("vision.ocr_merge_window", 2*time.Second)
	v.SetDefault("vision.concurrency", 2)
	v.SetDefault("vision.retry_delay", defaultWorkerRetryDelay)
	v.SetDefault("vision.metrics_port", 0)

	// NLP defaults
	v.SetDefault("nlp.entities_dir", "data/dictionaries/entities")
	v.SetDefault("nlp.alerts_dir", "data/dictionaries/alerts")
	v.SetDefault("nlp.concurrency", 4)
	v.SetDefault("nlp.retry_delay", defaultWorkerRetryDelay)
	v.SetDefault("nlp.metrics_port", 0)

	// Retention defaults
	v.SetDefault("retention.transcripts_days", defaultRetainDays)
	v.SetDefault("retention.embeddings_days", defaultRetainDays)
	v.SetDefault("retention.entities_days", defaultRetainDays)
	v.SetDefault("retention.alerts_days", defaultRetainDays)
	v.SetDefault("retention.screenshots_days", 30)
	v.SetDefault("retention.cron", "")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.API.Port < 1 || c.API.Port > maxPort {
		return fmt.Errorf("api.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"postgres": true, "sqlite": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: postgres, sqlite")
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for the sqlite driver")
	}

	if c.Redis.URL == "" && c.Redis.Addr == "" {
		return fmt.Errorf("redis.url or redis.addr is required")
	}

	if c.Storage.DataRoot == "" {
		return fmt.Errorf("storage.data_root is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Recorder.HeartbeatSeconds < 5 {
		return fmt.Errorf("recorder.heartbeat_seconds must be at least 5")
	}
	if c.Recorder.MaxRestartsPerHour < 0 {
		return fmt.Errorf("recorder.max_restarts_per_hour must not be negative")
	}

	if c.Scheduler.LookbackMinutes < 1 {
		return fmt.Errorf("scheduler.lookback_minutes must be at least 1")
	}
	if c.Scheduler.EnqueueBatch < 1 {
		return fmt.Errorf("scheduler.enqueue_batch must be at least 1")
	}

	validDevices := map[string]bool{"cpu": true, "cuda": true, "mps": true}
	if !validDevices[c.ASR.Device] {
		return fmt.Errorf("asr.device must be one of: cpu, cuda, mps")
	}

	return nil
}
