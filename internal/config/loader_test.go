package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/VirginiaXiao148/Pitch-Detector/internal/errors"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoadFromReaderEmpty(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Audio.SampleRate != 44100 || cfg.Filter.LowHz != 250 || cfg.Filter.HighHz != 3000 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Score.OutputPath != "output_sheet_music.xml" {
		t.Errorf("output path = %q", cfg.Score.OutputPath)
	}
}

func TestLoadFromReaderOverrides(t *testing.T) {
	const doc = `
server:
  listen_addr: ":9090"
  log_level: debug
  job_ttl: 30m
filter:
  low_hz: 0
  high_hz: .inf
score:
  note_duration: 1.0
  title: Sketch
capture:
  duration: 3s
`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != LogDebug {
		t.Errorf("server section not applied: %+v", cfg.Server)
	}
	if cfg.Server.JobTTL != 30*time.Minute {
		t.Errorf("job_ttl = %s", cfg.Server.JobTTL)
	}
	if cfg.Filter.LowHz != 0 || !math.IsInf(cfg.Filter.HighHz, 1) {
		t.Errorf("filter = %+v, want permissive band", cfg.Filter)
	}
	if cfg.Score.NoteDuration != 1.0 || cfg.Score.Title != "Sketch" {
		t.Errorf("score = %+v", cfg.Score)
	}
	if cfg.Capture.Duration != 3*time.Second || cfg.Capture.Tool != "ffmpeg" {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	// Untouched sections keep their defaults.
	if cfg.Audio.ResampleQuality != 4 || cfg.Score.Tempo != 120 {
		t.Errorf("defaults lost: %+v %+v", cfg.Audio, cfg.Score)
	}
}

func TestLoadFromReaderUnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("audio:\n  sample_rat: 8000\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Audio.SampleRate = 0
	cfg.Audio.ResampleQuality = 100
	cfg.Filter.LowHz = 500
	cfg.Filter.HighHz = 400
	cfg.Score.NoteDuration = 0
	cfg.Server.LogLevel = "loud"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, apperrors.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	for _, want := range []string{
		"audio.sample_rate",
		"audio.resample_quality",
		"filter",
		"score.note_duration",
		"server.log_level",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pitch.yaml")
	if err := os.WriteFile(path, []byte("audio:\n  sample_rate: 22050\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Audio.SampleRate != 22050 {
		t.Errorf("sample_rate = %d", cfg.Audio.SampleRate)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLogLevel(t *testing.T) {
	if LogDebug.Level().String() != "DEBUG" || LogLevel("").Level().String() != "INFO" {
		t.Error("unexpected slog level mapping")
	}
	if LogLevel("verbose").IsValid() {
		t.Error("verbose should not be a valid level")
	}
}
