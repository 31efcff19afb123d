// Package ffmpeg provides FFmpeg/FFprobe binary discovery and media probing.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
)

// Env vars that override binary discovery.
const (
	envFFmpeg  = "MOBASHER_FFMPEG_BINARY"
	envFFprobe = "MOBASHER_FFPROBE_BINARY"
)

// BinaryInfo contains the resolved FFmpeg/FFprobe installation.
type BinaryInfo struct {
	FFmpegPath  string `json:"ffmpeg_path"`
	FFprobePath string `json:"ffprobe_path"`
	Version     string `json:"version"`
}

var versionRe = regexp.MustCompile(`ffmpeg version (\S+)`)

// BinaryDetector resolves and caches the ffmpeg/ffprobe binaries.
type BinaryDetector struct {
	mu   sync.Mutex
	info *BinaryInfo

	// Explicit paths from config; empty means discover.
	FFmpegPath  string
	FFprobePath string
}

// NewBinaryDetector creates a detector with optional explicit paths.
func NewBinaryDetector(ffmpegPath, ffprobePath string) *BinaryDetector {
	return &BinaryDetector{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// Detect resolves both binaries and reads the ffmpeg version banner.
// The result is cached for the process lifetime.
func (d *BinaryDetector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.info != nil {
		return d.info, nil
	}

	ffmpegPath, err := findBinary("ffmpeg", d.FFmpegPath, envFFmpeg)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	ffprobePath, err := findBinary("ffprobe", d.FFprobePath, envFFprobe)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	info := &BinaryInfo{
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
	}

	out, err := exec.CommandContext(ctx, ffmpegPath, "-version").Output()
	if err != nil {
		return nil, fmt.Errorf("running ffmpeg -version: %w", err)
	}
	if m := versionRe.FindSubmatch(out); m != nil {
		info.Version = string(m[1])
	}

	d.info = info
	return info, nil
}

// findBinary resolves a binary: explicit config path, then env override,
// then PATH lookup.
func findBinary(name, explicit, envVar string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("configured %s path %q: %w", name, explicit, err)
		}
		return explicit, nil
	}
	if env := strings.TrimSpace(os.Getenv(envVar)); env != "" {
		if _, err := os.Stat(env); err != nil {
			return "", fmt.Errorf("%s from %s: %w", name, envVar, err)
		}
		return env, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("looking up %s on PATH: %w", name, err)
	}
	return path, nil
}
