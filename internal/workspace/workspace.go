package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Workspace manages temporary files for a single transcription job
type Workspace struct {
	Dir       string
	CreatedAt time.Time
}

// Create creates a new isolated workspace under root, or the system temp
// directory when root is empty.
func Create(root string) (*Workspace, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, fmt.Errorf("create workspace root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(root, "pitch-detector-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	return &Workspace{
		Dir:       dir,
		CreatedAt: time.Now(),
	}, nil
}

// Path helpers for workspace files
func (w *Workspace) MusicXML() string { return filepath.Join(w.Dir, "score.musicxml") }
func (w *Workspace) MIDI() string     { return filepath.Join(w.Dir, "score.mid") }

// Upload returns the path an uploaded file with the given original name is
// stored at. Only the extension of the name is kept.
func (w *Workspace) Upload(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".wav", ".mp3":
	default:
		ext = ".bin"
	}
	return filepath.Join(w.Dir, "input"+ext)
}

// Expired reports whether the workspace is older than ttl.
func (w *Workspace) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(w.CreatedAt) > ttl
}

// Cleanup removes the workspace directory and all contents
func (w *Workspace) Cleanup() error {
	return os.RemoveAll(w.Dir)
}

// SaveUpload copies r into the workspace upload path, refusing more than
// limit bytes.
func (w *Workspace) SaveUpload(name string, r io.Reader, limit int64) (string, error) {
	dst := w.Upload(name)
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if n > limit {
		return "", fmt.Errorf("upload exceeds %d bytes", limit)
	}
	return dst, nil
}
