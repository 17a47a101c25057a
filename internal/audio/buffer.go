// Package audio loads, normalizes and resamples the clips handed to the
// transcription pipeline.
package audio

import (
	"fmt"
	"time"

	apperrors "github.com/VirginiaXiao148/Pitch-Detector/internal/errors"
)

// Source is anything that can be turned into a float buffer ready for
// analysis: a decoded file, an upload, a microphone capture.
type Source interface {
	Normalize() (*Buffer, error)
}

// Buffer holds floating-point samples in [-1, 1], interleaved when
// Channels > 1.
type Buffer struct {
	SampleRate int
	Channels   int
	Samples    []float64
}

// NewMono wraps mono float samples.
func NewMono(sampleRate int, samples []float64) *Buffer {
	return &Buffer{SampleRate: sampleRate, Channels: 1, Samples: samples}
}

// Frames returns the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playing time of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

// Normalize validates the buffer and mixes it down to mono.
func (b *Buffer) Normalize() (*Buffer, error) {
	if b == nil {
		return nil, apperrors.ErrNoInput
	}
	if err := validateLayout(b.SampleRate, b.Channels, len(b.Samples)); err != nil {
		return nil, err
	}
	return b.Mono(), nil
}

// Mono averages all channels of each frame. A mono buffer is returned as is.
func (b *Buffer) Mono() *Buffer {
	if b.Channels == 1 {
		return b
	}
	frames := b.Frames()
	out := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range b.Channels {
			sum += b.Samples[i*b.Channels+c]
		}
		out[i] = sum / float64(b.Channels)
	}
	return NewMono(b.SampleRate, out)
}

// PCM holds signed integer samples as produced by WAV decoders and
// recording widgets, interleaved when Channels > 1.
type PCM struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Data       []int
}

// Normalize converts the integers to floats in [-1, 1) by dividing by
// 2^(BitDepth-1), then mixes down to mono.
func (p *PCM) Normalize() (*Buffer, error) {
	if p == nil {
		return nil, apperrors.ErrNoInput
	}
	if err := validateLayout(p.SampleRate, p.Channels, len(p.Data)); err != nil {
		return nil, err
	}
	if p.BitDepth < 8 || p.BitDepth > 32 {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", apperrors.ErrInvalidAudio, p.BitDepth)
	}

	scale := 1 / float64(int64(1)<<(p.BitDepth-1))
	samples := make([]float64, len(p.Data))
	for i, v := range p.Data {
		samples[i] = float64(v) * scale
	}

	buf := &Buffer{SampleRate: p.SampleRate, Channels: p.Channels, Samples: samples}
	return buf.Mono(), nil
}

func validateLayout(sampleRate, channels, samples int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", apperrors.ErrInvalidAudio, sampleRate)
	}
	if channels <= 0 {
		return fmt.Errorf("%w: channel count must be positive, got %d", apperrors.ErrInvalidAudio, channels)
	}
	if samples%channels != 0 {
		return fmt.Errorf("%w: %d samples do not divide into %d channels", apperrors.ErrInvalidAudio, samples, channels)
	}
	return nil
}
