// Package config defines the YAML configuration of the pitch detector and
// its defaults.
package config

import (
	"log/slog"
	"time"

	"github.com/VirginiaXiao148/Pitch-Detector/internal/audio"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/pitch"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Audio   AudioConfig   `yaml:"audio"`
	Filter  FilterConfig  `yaml:"filter"`
	Score   ScoreConfig   `yaml:"score"`
	Capture CaptureConfig `yaml:"capture"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig configures the web UI.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string   `yaml:"listen_addr"`
	LogLevel   LogLevel `yaml:"log_level"`

	// MaxUploadMB caps the size of an uploaded clip.
	MaxUploadMB int64 `yaml:"max_upload_mb"`

	// JobTTL is how long job files stay downloadable.
	JobTTL time.Duration `yaml:"job_ttl"`

	// WorkDir holds per-job workspaces; empty means the system temp dir.
	WorkDir string `yaml:"work_dir"`
}

// AudioConfig controls loading and resampling.
type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	ResampleQuality int `yaml:"resample_quality"`
}

// FilterConfig is the accepted frequency band, exclusive on both ends.
// high_hz accepts .inf.
type FilterConfig struct {
	LowHz  float64 `yaml:"low_hz"`
	HighHz float64 `yaml:"high_hz"`
}

// Policy returns the filter policy for the band.
func (f FilterConfig) Policy() pitch.Policy {
	return pitch.Policy{LowHz: f.LowHz, HighHz: f.HighHz}
}

// ScoreConfig controls the emitted artifacts.
type ScoreConfig struct {
	NoteDuration float64 `yaml:"note_duration"`
	OutputPath   string  `yaml:"output_path"`
	MIDIOutput   string  `yaml:"midi_output"`
	Title        string  `yaml:"title"`
	Tempo        float64 `yaml:"tempo"`
}

// CaptureConfig configures microphone recording.
type CaptureConfig struct {
	Tool     string        `yaml:"tool"`
	Format   string        `yaml:"format"`
	Device   string        `yaml:"device"`
	Duration time.Duration `yaml:"duration"`
}

// Recorder returns the audio capture settings recording at sampleRate.
func (c CaptureConfig) Recorder(sampleRate int) audio.CaptureConfig {
	return audio.CaptureConfig{
		Tool:       c.Tool,
		Format:     c.Format,
		Device:     c.Device,
		Duration:   c.Duration,
		SampleRate: sampleRate,
	}
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	capture := audio.DefaultCaptureConfig()
	return &Config{
		Server: ServerConfig{
			ListenAddr:  ":8080",
			LogLevel:    LogInfo,
			MaxUploadMB: 100,
			JobTTL:      time.Hour,
		},
		Audio: AudioConfig{
			SampleRate:      44100,
			ResampleQuality: audio.DefaultResampleQuality,
		},
		Filter: FilterConfig{
			LowHz:  pitch.DefaultLowHz,
			HighHz: pitch.DefaultHighHz,
		},
		Score: ScoreConfig{
			NoteDuration: 0.5,
			OutputPath:   "output_sheet_music.xml",
			Tempo:        120,
		},
		Capture: CaptureConfig{
			Tool:     capture.Tool,
			Format:   capture.Format,
			Device:   capture.Device,
			Duration: capture.Duration,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
