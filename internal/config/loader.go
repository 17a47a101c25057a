package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/VirginiaXiao148/Pitch-Detector/internal/errors"
)

// Load reads the YAML file at path over the defaults and validates it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the
// result. Unknown keys are rejected; an empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. All problems
// are reported together, each wrapping ErrInvalidConfig.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{apperrors.ErrInvalidConfig}, args...)...))
	}

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		add("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}
	if cfg.Server.MaxUploadMB <= 0 {
		add("server.max_upload_mb must be positive, got %d", cfg.Server.MaxUploadMB)
	}
	if cfg.Server.JobTTL <= 0 {
		add("server.job_ttl must be positive, got %s", cfg.Server.JobTTL)
	}

	if cfg.Audio.SampleRate <= 0 {
		add("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate)
	}
	if q := cfg.Audio.ResampleQuality; q < 1 || q > 64 {
		add("audio.resample_quality must be in [1, 64], got %d", q)
	}

	if err := cfg.Filter.Policy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("filter: %w", err))
	}

	if d := cfg.Score.NoteDuration; !(d > 0) || math.IsInf(d, 0) {
		add("score.note_duration must be positive, got %v", d)
	}
	if !(cfg.Score.Tempo > 0) || math.IsInf(cfg.Score.Tempo, 0) {
		add("score.tempo must be positive, got %v", cfg.Score.Tempo)
	}
	if strings.TrimSpace(cfg.Score.OutputPath) == "" {
		add("score.output_path must not be empty")
	}

	if cfg.Capture.Tool == "" {
		add("capture.tool must not be empty")
	}
	if cfg.Capture.Duration <= 0 {
		add("capture.duration must be positive, got %s", cfg.Capture.Duration)
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		add("metrics.path %q must start with /", cfg.Metrics.Path)
	}

	return errors.Join(errs...)
}
