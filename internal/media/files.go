// Package media handles uploaded files: extension checks, safe storage
// under the upload directory, ffprobe metadata.
package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var mediaExtensions = map[string]bool{
	// video
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
	".wmv": true, ".flv": true, ".webm": true, ".m4v": true,
	".ts": true, ".mpg": true, ".mpeg": true,
	// audio
	".mp3": true, ".wav": true, ".m4a": true, ".aac": true,
	".flac": true, ".ogg": true, ".opus": true, ".wma": true,
}

// IsMediaFile reports whether name has a recognized audio or video extension.
func IsMediaFile(name string) bool {
	return mediaExtensions[strings.ToLower(filepath.Ext(name))]
}

// SaveUpload writes an uploaded file under dir with a unique name derived
// from the original filename. The original name is flattened to its base to
// block path traversal.
func SaveUpload(dir, filename string, r io.Reader) (string, error) {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == ".." || base == "" {
		return "", fmt.Errorf("invalid filename: %q", filename)
	}
	if !IsMediaFile(base) {
		return "", fmt.Errorf("not a supported media file: %q", base)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	// Unique prefix so repeated uploads of the same file never collide.
	name := uuid.New().String()[:8] + "_" + base
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("save upload: %w", err)
	}
	if n == 0 {
		os.Remove(path)
		return "", fmt.Errorf("uploaded file is empty")
	}

	return path, nil
}
