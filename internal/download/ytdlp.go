// Package download fetches remote media with yt-dlp.
package download

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Fetcher resolves a remote URL to a local media file. The returned cleanup
// func removes everything the fetch created and must be called after the run,
// success or failure.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (path string, cleanup func(), err error)
}

// YtDlp shells out to the yt-dlp binary.
type YtDlp struct {
	Bin string // defaults to "yt-dlp"
}

func NewYtDlp(bin string) *YtDlp {
	if bin == "" {
		bin = "yt-dlp"
	}
	return &YtDlp{Bin: bin}
}

// IsSupportedURL reports whether s looks like a fetchable http(s) link.
func IsSupportedURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetch downloads the best available audio stream for rawURL into a fresh
// temp dir. Audio-only formats can be rejected by some sites (403), so a
// failed first attempt falls back to the full video, which the transcription
// engine accepts as well. For playlist links only the first item is taken.
func (y *YtDlp) Fetch(ctx context.Context, rawURL string) (string, func(), error) {
	if !IsSupportedURL(rawURL) {
		return "", func() {}, fmt.Errorf("not a valid media URL: %q", rawURL)
	}

	tmpDir, err := os.MkdirTemp("", "media-fetch-")
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	formats := []string{"bestaudio[ext=m4a]/bestaudio/best", "best"}
	var attempts []string
	for _, format := range formats {
		if err := y.run(ctx, tmpDir, format, rawURL); err != nil {
			attempts = append(attempts, err.Error())
			continue
		}
		path, err := downloadedFile(tmpDir)
		if err != nil {
			cleanup()
			return "", func() {}, err
		}
		return path, cleanup, nil
	}

	cleanup()
	return "", func() {}, fmt.Errorf("yt-dlp failed: %s", strings.Join(attempts, "; "))
}

func (y *YtDlp) run(ctx context.Context, dir, format, rawURL string) error {
	outTmpl := filepath.Join(dir, "%(title)s.%(ext)s")
	cmd := exec.CommandContext(ctx, y.Bin,
		"-f", format,
		"--playlist-items", "1",
		"--no-warnings",
		"-o", outTmpl,
		rawURL,
	)
	cmd.Dir = dir

	log.Printf("[download] yt-dlp format=%q url=%s", format, rawURL)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("format %q: %s", format, lastLines(string(output), 3))
	}
	return nil
}

// downloadedFile finds the fetched media file, ignoring yt-dlp .part leftovers.
func downloadedFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read download dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".part") {
			continue
		}
		return filepath.Join(dir, entry.Name()), nil
	}
	return "", fmt.Errorf("yt-dlp reported success but produced no file")
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
