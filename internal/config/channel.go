package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChannelConfig is a per-channel capture descriptor, one YAML file per channel.
type ChannelConfig struct {
	ID          string              `yaml:"id"`
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Input       ChannelInput        `yaml:"input"`
	Recording   ChannelRecording    `yaml:"recording"`
	Storage     ChannelStorage      `yaml:"storage"`
	Audio       ChannelAudio        `yaml:"audio"`
	Video       ChannelVideo        `yaml:"video"`
	Headless    bool                `yaml:"headless"`
	Extra       map[string]any      `yaml:"extra"`
}

// ChannelInput describes the upstream stream.
type ChannelInput struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// ChannelRecording controls segmentation for the processing and archive legs.
type ChannelRecording struct {
	SegmentSeconds        int    `yaml:"segment_seconds"`
	AudioEnabled          *bool  `yaml:"audio_enabled"`
	VideoEnabled          *bool  `yaml:"video_enabled"`
	VideoQuality          string `yaml:"video_quality"`
	ArchiveEnabled        *bool  `yaml:"archive_enabled"`
	ArchiveSegmentSeconds int    `yaml:"archive_segment_seconds"`
	ArchiveQuality        string `yaml:"archive_quality"`
}

// ChannelStorage controls the on-disk layout for this channel.
type ChannelStorage struct {
	DateFolders *bool             `yaml:"date_folders"`
	Directories map[string]string `yaml:"directories"`
}

// ChannelAudio holds PCM capture parameters for the processing audio leg.
type ChannelAudio struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
}

// VideoQuality is one encode profile.
type VideoQuality struct {
	Resolution string `yaml:"resolution"`
	Bitrate    string `yaml:"bitrate"`
	FPS        int    `yaml:"fps"`
}

// ChannelVideo holds encoder selection and the quality table.
type ChannelVideo struct {
	Encoder   string                  `yaml:"encoder"` // auto, libx264, h264_videotoolbox, ...
	Preset    string                  `yaml:"preset"`
	Threads   int                     `yaml:"threads"`
	Qualities map[string]VideoQuality `yaml:"qualities"`
}

// defaultQualities mirrors the capture defaults used before quality tables
// were configurable.
func defaultQualities() map[string]VideoQuality {
	return map[string]VideoQuality{
		"720p":  {Resolution: "1280x720", Bitrate: "2500k", FPS: 25},
		"1080p": {Resolution: "1920x1080", Bitrate: "4500k", FPS: 25},
	}
}

// applyDefaults fills zero values with the capture defaults.
func (c *ChannelConfig) applyDefaults() {
	if c.Recording.SegmentSeconds == 0 {
		c.Recording.SegmentSeconds = 60
	}
	if c.Recording.AudioEnabled == nil {
		c.Recording.AudioEnabled = boolPtr(true)
	}
	if c.Recording.VideoEnabled == nil {
		c.Recording.VideoEnabled = boolPtr(true)
	}
	if c.Recording.VideoQuality == "" {
		c.Recording.VideoQuality = "720p"
	}
	if c.Recording.ArchiveEnabled == nil {
		c.Recording.ArchiveEnabled = boolPtr(true)
	}
	if c.Recording.ArchiveSegmentSeconds == 0 {
		c.Recording.ArchiveSegmentSeconds = 3600
	}
	if c.Recording.ArchiveQuality == "" {
		c.Recording.ArchiveQuality = "1080p"
	}
	if c.Storage.DateFolders == nil {
		c.Storage.DateFolders = boolPtr(true)
	}
	if c.Storage.Directories == nil {
		c.Storage.Directories = map[string]string{
			"audio":   "audio",
			"video":   "video",
			"archive": "archive",
		}
	}
	for _, key := range []string{"audio", "video", "archive"} {
		if c.Storage.Directories[key] == "" {
			c.Storage.Directories[key] = key
		}
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Video.Encoder == "" {
		c.Video.Encoder = "auto"
	}
	if c.Video.Preset == "" {
		c.Video.Preset = "medium"
	}
	if c.Video.Qualities == nil {
		c.Video.Qualities = defaultQualities()
	}
}

func boolPtr(b bool) *bool { return &b }

// Validate checks the descriptor for errors.
func (c *ChannelConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("channel id is required")
	}
	if strings.ContainsAny(c.ID, "/\\ ") {
		return fmt.Errorf("channel id %q must not contain spaces or path separators", c.ID)
	}
	if strings.TrimSpace(c.Input.URL) == "" {
		return fmt.Errorf("channel %s: input.url is required", c.ID)
	}
	if c.Recording.SegmentSeconds < 1 {
		return fmt.Errorf("channel %s: recording.segment_seconds must be positive", c.ID)
	}
	if c.Recording.ArchiveSegmentSeconds < 1 {
		return fmt.Errorf("channel %s: recording.archive_segment_seconds must be positive", c.ID)
	}
	if !*c.Recording.AudioEnabled && !*c.Recording.VideoEnabled && !*c.Recording.ArchiveEnabled {
		return fmt.Errorf("channel %s: all capture legs disabled", c.ID)
	}
	if _, ok := c.Video.Qualities[c.Recording.VideoQuality]; !ok {
		return fmt.Errorf("channel %s: video quality %q not in qualities table", c.ID, c.Recording.VideoQuality)
	}
	if *c.Recording.ArchiveEnabled {
		if _, ok := c.Video.Qualities[c.Recording.ArchiveQuality]; !ok {
			return fmt.Errorf("channel %s: archive quality %q not in qualities table", c.ID, c.Recording.ArchiveQuality)
		}
	}
	if c.Audio.SampleRate < 8000 {
		return fmt.Errorf("channel %s: audio.sample_rate must be at least 8000", c.ID)
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return fmt.Errorf("channel %s: audio.channels must be 1 or 2", c.ID)
	}
	return nil
}

// Quality returns the encode profile for name, falling back to 720p.
func (c *ChannelConfig) Quality(name string) VideoQuality {
	if q, ok := c.Video.Qualities[name]; ok {
		return q
	}
	return c.Video.Qualities["720p"]
}

// UserAgent returns the upstream User-Agent header, defaulting to the
// supervisor marker used to find stray capture children.
func (c *ChannelConfig) UserAgent() string {
	if ua, ok := c.Input.Headers["User-Agent"]; ok && ua != "" {
		return ua
	}
	return "Mobasher/1.0"
}

// HeaderBlock renders the extra request headers in the CRLF form ffmpeg's
// -headers flag expects. User-Agent is excluded; it travels via -user_agent.
func (c *ChannelConfig) HeaderBlock() string {
	keys := make([]string, 0, len(c.Input.Headers))
	for k := range c.Input.Headers {
		if k == "User-Agent" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(c.Input.Headers[k])
		b.WriteString("\r\n")
	}
	return b.String()
}

// LoadChannel reads and validates a single channel descriptor.
func LoadChannel(path string) (*ChannelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading channel config %s: %w", path, err)
	}
	var cfg ChannelConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing channel config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid channel config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadChannelDir reads every *.yaml descriptor in dir, sorted by channel id.
func LoadChannelDir(dir string) ([]*ChannelConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading channels dir %s: %w", dir, err)
	}
	var out []*ChannelConfig
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		cfg, err := LoadChannel(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
