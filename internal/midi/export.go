// Package midi writes transcribed scores as Standard MIDI Files.
package midi

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	apperrors "github.com/VirginiaXiao148/Pitch-Detector/internal/errors"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/score"
)

const (
	TicksPerQuarter = 960
	DefaultTempo    = 120.0
	DefaultVelocity = 100
)

// Note represents a single MIDI note, positions in quarter notes
type Note struct {
	Pitch    int     `json:"pitch"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Velocity int     `json:"velocity"`
}

// Exporter converts scores to single-track SMF data
type Exporter struct {
	Tempo    float64 // beats per minute
	Velocity uint8
	Channel  uint8
}

// NewExporter creates an exporter at 120 bpm on channel 0
func NewExporter() *Exporter {
	return &Exporter{
		Tempo:    DefaultTempo,
		Velocity: DefaultVelocity,
	}
}

// Marshal encodes s as a format 0 SMF.
func (e *Exporter) Marshal(s *score.Score) ([]byte, error) {
	if e.Tempo <= 0 || math.IsInf(e.Tempo, 0) || math.IsNaN(e.Tempo) {
		return nil, fmt.Errorf("%w: tempo must be positive, got %v", apperrors.ErrInvalidConfig, e.Tempo)
	}
	if e.Channel > 15 {
		return nil, fmt.Errorf("%w: channel %d out of range", apperrors.ErrInvalidConfig, e.Channel)
	}

	var tr smf.Track
	if s != nil && s.Title != "" {
		tr.Add(0, smf.MetaTrackSequenceName(s.Title))
	}
	tr.Add(0, smf.MetaMeter(4, 4))
	tr.Add(0, smf.MetaTempo(e.Tempo))

	if s != nil {
		for i, ev := range s.Events {
			if ev.MIDIPitch < 0 || ev.MIDIPitch > 127 {
				return nil, fmt.Errorf("%w: event %d has pitch %d", apperrors.ErrPitchOutOfRange, i, ev.MIDIPitch)
			}
			ticks := uint32(max(1, math.Round(ev.QuarterLength*TicksPerQuarter)))
			key := uint8(ev.MIDIPitch)
			tr.Add(0, gomidi.NoteOn(e.Channel, key, e.Velocity))
			tr.Add(ticks, gomidi.NoteOff(e.Channel, key))
		}
	}
	tr.Close(0)

	f := smf.New()
	f.TimeFormat = smf.MetricTicks(TicksPerQuarter)
	if err := f.Add(tr); err != nil {
		return nil, fmt.Errorf("add track: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode smf: %w", err)
	}
	return buf.Bytes(), nil
}

// Write encodes s and replaces path atomically.
func (e *Exporter) Write(s *score.Score, path string) error {
	data, err := e.Marshal(s)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp midi: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write midi: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close midi: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod midi: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename midi: %w", err)
	}
	return nil
}
