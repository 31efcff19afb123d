package worker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveMedia finds the media file a segment row points at. Paths are
// recorded on the capture host and may not match this worker's filesystem,
// so after the literal path it tries the working directory and finally
// remaps everything from the media kind directory onto the local data root.
func ResolveMedia(path, dataRoot string) (string, error) {
	if path == "" {
		return "", errors.New("segment has no media path")
	}
	if fileExists(path) {
		return path, nil
	}
	if !filepath.IsAbs(path) {
		if wd, err := os.Getwd(); err == nil {
			if p := filepath.Join(wd, path); fileExists(p) {
				return p, nil
			}
		}
	}
	if dataRoot != "" {
		for _, kind := range []string{"audio", "video", "archive", "screenshot"} {
			marker := string(os.PathSeparator) + kind + string(os.PathSeparator)
			if i := strings.Index(path, marker); i >= 0 {
				if p := filepath.Join(dataRoot, path[i+1:]); fileExists(p) {
					return p, nil
				}
			}
		}
	}
	return "", fmt.Errorf("media file %s not found", path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
