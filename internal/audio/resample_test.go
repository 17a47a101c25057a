package audio

import (
	"errors"
	"math"
	"testing"

	apperrors "github.com/VirginiaXiao148/Pitch-Detector/internal/errors"
)

func zeroCrossings(samples []float64) int {
	n := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] < 0) != (samples[i] < 0) {
			n++
		}
	}
	return n
}

func TestResampleSameRate(t *testing.T) {
	buf := NewMono(44100, []float64{0, 0.1, 0.2})
	out, err := Resample(buf, 44100, DefaultResampleQuality)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if out != buf {
		t.Error("expected the same buffer back when rates match")
	}
}

func TestResampleUpsample(t *testing.T) {
	buf := NewMono(22050, sine(440, 22050, 1.0, 0.5))

	out, err := Resample(buf, 44100, DefaultResampleQuality)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if out.SampleRate != 44100 || out.Channels != 1 {
		t.Fatalf("unexpected layout: %d Hz, %d ch", out.SampleRate, out.Channels)
	}
	if math.Abs(float64(out.Frames()-44100)) > 64 {
		t.Errorf("frames = %d, want ~44100", out.Frames())
	}

	// One second of 440 Hz crosses zero about 880 times at any rate.
	if zc := zeroCrossings(out.Samples); zc < 870 || zc > 890 {
		t.Errorf("zero crossings = %d, want ~880", zc)
	}
}

func TestResampleStereo(t *testing.T) {
	samples := make([]float64, 0, 2*4800)
	for _, s := range sine(220, 48000, 0.1, 0.5) {
		samples = append(samples, s, -s)
	}
	buf := &Buffer{SampleRate: 48000, Channels: 2, Samples: samples}

	out, err := Resample(buf, 44100, DefaultResampleQuality)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if out.Channels != 2 {
		t.Fatalf("channels = %d, want 2", out.Channels)
	}
	if math.Abs(float64(out.Frames()-4410)) > 32 {
		t.Errorf("frames = %d, want ~4410", out.Frames())
	}
}

func TestResampleInvalid(t *testing.T) {
	if _, err := Resample(nil, 44100, 4); !errors.Is(err, apperrors.ErrNoInput) {
		t.Errorf("expected ErrNoInput, got %v", err)
	}
	if _, err := Resample(NewMono(8000, []float64{0}), 44100, 0); !errors.Is(err, apperrors.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for quality 0, got %v", err)
	}
	if _, err := Resample(NewMono(8000, []float64{0}), 0, 4); !errors.Is(err, apperrors.ErrInvalidAudio) {
		t.Errorf("expected ErrInvalidAudio for target 0, got %v", err)
	}
	multi := &Buffer{SampleRate: 8000, Channels: 3, Samples: make([]float64, 3)}
	if _, err := Resample(multi, 44100, 4); !errors.Is(err, apperrors.ErrInvalidAudio) {
		t.Errorf("expected ErrInvalidAudio for 3 channels, got %v", err)
	}
}
