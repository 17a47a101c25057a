package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	apperrors "github.com/VirginiaXiao148/Pitch-Detector/internal/errors"
)

// Result holds command execution output
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes external commands with context support
type Runner struct {
	// Env is appended to the current process environment.
	Env []string
	// Dir is the working directory; empty means the current one.
	Dir string
}

// NewRunner creates a new command runner
func NewRunner() *Runner {
	return &Runner{}
}

// LookPath resolves a tool on PATH
func (r *Runner) LookPath(tool string) (string, error) {
	path, err := exec.LookPath(tool)
	if err != nil {
		return "", fmt.Errorf("%w: %s", apperrors.ErrToolNotInstalled, tool)
	}
	return path, nil
}

// Run executes a command and captures output. A non-zero exit is reported
// as a ProcessError for the given stage.
func (r *Runner) Run(ctx context.Context, stage, name string, args ...string) (*Result, error) {
	if _, err := r.LookPath(name); err != nil {
		return nil, err
	}

	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
	}

	if err != nil {
		return result, apperrors.NewProcessError(name, stage, result.ExitCode, result.Stderr, err)
	}

	return result, nil
}
