package audio

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	apperrors "github.com/VirginiaXiao148/Pitch-Detector/internal/errors"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/exec"
)

func TestRecorderArgs(t *testing.T) {
	r := NewRecorder(exec.NewRunner(), CaptureConfig{
		Tool:       "ffmpeg",
		Format:     "pulse",
		Device:     "mic",
		Duration:   2500 * time.Millisecond,
		SampleRate: 44100,
	})

	args := r.Args("/tmp/out.wav")
	for _, pair := range [][2]string{
		{"-f", "pulse"},
		{"-i", "mic"},
		{"-t", "2.500"},
		{"-ar", "44100"},
		{"-ac", "1"},
	} {
		i := slices.Index(args, pair[0])
		if i < 0 || i+1 >= len(args) || args[i+1] != pair[1] {
			t.Errorf("expected %s %s in %v", pair[0], pair[1], args)
		}
	}
	if args[len(args)-1] != "/tmp/out.wav" {
		t.Errorf("output path should be last, got %v", args)
	}
}

func TestRecorderMissingTool(t *testing.T) {
	cfg := DefaultCaptureConfig()
	cfg.Tool = "definitely-not-a-recorder-42"
	cfg.Duration = 10 * time.Millisecond

	_, err := NewRecorder(exec.NewRunner(), cfg).Capture(context.Background())
	if !errors.Is(err, apperrors.ErrToolNotInstalled) {
		t.Errorf("expected ErrToolNotInstalled, got %v", err)
	}
}

func TestRecorderRejectsZeroDuration(t *testing.T) {
	cfg := DefaultCaptureConfig()
	cfg.Duration = 0
	if _, err := NewRecorder(exec.NewRunner(), cfg).Capture(context.Background()); err == nil {
		t.Error("expected error for zero duration")
	}
}

func TestIsYouTubeURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ", true},
		{"https://youtube.com/shorts/abc-123", true},
		{"https://music.youtube.com/watch?v=abc", true},
		{"https://vimeo.com/12345", false},
		{"not a url", false},
	}

	for _, tc := range tests {
		if got := IsYouTubeURL(tc.url); got != tc.want {
			t.Errorf("IsYouTubeURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}
