package audio

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/VirginiaXiao148/Pitch-Detector/internal/exec"
)

var youTubePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(www\.)?youtube\.com/watch\?v=[\w-]+`),
	regexp.MustCompile(`^https?://(www\.)?youtube\.com/shorts/[\w-]+`),
	regexp.MustCompile(`^https?://youtu\.be/[\w-]+`),
	regexp.MustCompile(`^https?://music\.youtube\.com/watch\?v=[\w-]+`),
}

// YouTubeDownloader handles downloading audio from YouTube
type YouTubeDownloader struct {
	runner *exec.Runner
}

// NewYouTubeDownloader creates a new YouTube downloader
func NewYouTubeDownloader(runner *exec.Runner) *YouTubeDownloader {
	return &YouTubeDownloader{runner: runner}
}

// IsYouTubeURL checks if the given string is a YouTube URL
func IsYouTubeURL(url string) bool {
	for _, re := range youTubePatterns {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

// Download downloads audio from a YouTube URL using yt-dlp
func (d *YouTubeDownloader) Download(ctx context.Context, url, outputDir string) (string, error) {
	if !IsYouTubeURL(url) {
		return "", fmt.Errorf("not a YouTube URL: %s", url)
	}

	outputPath := filepath.Join(outputDir, "input.%(ext)s")

	// Download best audio and convert to wav
	_, err := d.runner.Run(ctx, "download", "yt-dlp",
		"--no-playlist",         // Only download single video
		"--extract-audio",       // Extract audio only
		"--audio-format", "wav", // Convert to WAV
		"--audio-quality", "0", // Best quality
		"--output", outputPath, // Output path template
		"--no-warnings",
		"--quiet",
		url,
	)
	if err != nil {
		// Try with mp3 if wav fails
		return d.downloadAsMp3(ctx, url, outputPath, outputDir)
	}

	return filepath.Join(outputDir, "input.wav"), nil
}

// downloadAsMp3 fallback to mp3 download
func (d *YouTubeDownloader) downloadAsMp3(ctx context.Context, url, outputPath, outputDir string) (string, error) {
	_, err := d.runner.Run(ctx, "download", "yt-dlp",
		"--no-playlist",
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"--output", outputPath,
		"--no-warnings",
		url,
	)
	if err != nil {
		return "", fmt.Errorf("yt-dlp download: %w", err)
	}

	return filepath.Join(outputDir, "input.mp3"), nil
}

// GetVideoTitle fetches the video title for display
func (d *YouTubeDownloader) GetVideoTitle(ctx context.Context, url string) (string, error) {
	res, err := d.runner.Run(ctx, "title", "yt-dlp", "--get-title", "--no-warnings", url)
	if err != nil {
		return "", err
	}

	title := strings.TrimSpace(res.Stdout)
	if title == "" {
		return "YouTube Video", nil
	}

	// Truncate if too long
	if len(title) > 50 {
		title = title[:47] + "..."
	}

	return title, nil
}
