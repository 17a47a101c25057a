package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for expected failure modes
var (
	ErrNoInput           = errors.New("no audio provided")
	ErrNoPitches         = errors.New("no pitches detected")
	ErrFileNotFound      = errors.New("file not found")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrCorruptedFile     = errors.New("file corrupted or unreadable")
	ErrFileTooLarge      = errors.New("file exceeds size limit")
	ErrInvalidAudio      = errors.New("invalid audio buffer")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrToolNotInstalled  = errors.New("required tool not installed")
	ErrPitchOutOfRange   = errors.New("pitch outside MIDI range")
)

// ProcessError represents a failure in an external process
type ProcessError struct {
	Tool     string // "ffmpeg", "yt-dlp"
	Stage    string // "capture", "download"
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed at %s (exit %d): %s", e.Tool, e.Stage, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s failed at %s (exit %d)", e.Tool, e.Stage, e.ExitCode)
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// NewProcessError creates a ProcessError
func NewProcessError(tool, stage string, exitCode int, stderr string, cause error) *ProcessError {
	return &ProcessError{
		Tool:     tool,
		Stage:    stage,
		ExitCode: exitCode,
		Stderr:   stderr,
		Cause:    cause,
	}
}
