package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestProcessErrorMessage(t *testing.T) {
	t.Run("WithStderr", func(t *testing.T) {
		err := NewProcessError("ffmpeg", "capture", 1, "device busy", nil)
		if !strings.Contains(err.Error(), "ffmpeg failed at capture (exit 1): device busy") {
			t.Errorf("unexpected message: %s", err)
		}
	})

	t.Run("WithoutStderr", func(t *testing.T) {
		err := NewProcessError("yt-dlp", "download", 2, "", nil)
		if err.Error() != "yt-dlp failed at download (exit 2)" {
			t.Errorf("unexpected message: %s", err)
		}
	})
}

func TestProcessErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("wrapped: %w", ErrToolNotInstalled)
	err := fmt.Errorf("record: %w", NewProcessError("ffmpeg", "capture", -1, "", cause))

	if !errors.Is(err, ErrToolNotInstalled) {
		t.Error("expected errors.Is to find ErrToolNotInstalled through ProcessError")
	}

	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatal("expected errors.As to find *ProcessError")
	}
	if pe.Tool != "ffmpeg" {
		t.Errorf("Tool = %q, want ffmpeg", pe.Tool)
	}
}
