package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/VirginiaXiao148/Pitch-Detector/internal/exec"
)

// CaptureConfig describes how to record from the microphone.
type CaptureConfig struct {
	Tool       string        // recorder binary, ffmpeg by default
	Format     string        // ffmpeg input format (alsa, pulse, avfoundation, dshow)
	Device     string        // input device name for that format
	Duration   time.Duration // fixed recording length
	SampleRate int
}

// DefaultCaptureConfig returns a five second mono capture from the default
// input device of the current platform.
func DefaultCaptureConfig() CaptureConfig {
	cfg := CaptureConfig{
		Tool:       "ffmpeg",
		Duration:   5 * time.Second,
		SampleRate: 44100,
	}
	switch runtime.GOOS {
	case "darwin":
		cfg.Format, cfg.Device = "avfoundation", ":0"
	case "windows":
		cfg.Format, cfg.Device = "dshow", "audio=default"
	default:
		cfg.Format, cfg.Device = "alsa", "default"
	}
	return cfg
}

// Recorder captures a fixed-length clip from the microphone. Capture blocks
// for the whole configured duration.
type Recorder struct {
	runner *exec.Runner
	cfg    CaptureConfig
	logger *slog.Logger
}

// NewRecorder creates a microphone recorder
func NewRecorder(runner *exec.Runner, cfg CaptureConfig) *Recorder {
	return &Recorder{
		runner: runner,
		cfg:    cfg,
		logger: slog.Default().With("component", "audio.Recorder"),
	}
}

// Args returns the recorder command line for writing to outputPath.
func (r *Recorder) Args(outputPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", r.cfg.Format,
		"-i", r.cfg.Device,
		"-t", strconv.FormatFloat(r.cfg.Duration.Seconds(), 'f', 3, 64),
		"-ac", "1",
		"-ar", strconv.Itoa(r.cfg.SampleRate),
		"-c:a", "pcm_s16le",
		"-y", outputPath,
	}
}

// Capture records into a temporary WAV file and decodes it.
func (r *Recorder) Capture(ctx context.Context) (Source, error) {
	if r.cfg.Duration <= 0 {
		return nil, fmt.Errorf("capture: duration must be positive, got %s", r.cfg.Duration)
	}

	dir, err := os.MkdirTemp("", "pitch-detector-capture-*")
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "capture.wav")
	r.logger.Info("recording from microphone",
		"device", r.cfg.Device,
		"format", r.cfg.Format,
		"duration", r.cfg.Duration,
	)
	if _, err := r.runner.Run(ctx, "capture", r.cfg.Tool, r.Args(out)...); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	src, err := Load(out)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return src, nil
}
