package audio

import (
	"fmt"
	"log/slog"

	"github.com/gopxl/beep"

	apperrors "github.com/VirginiaXiao148/Pitch-Detector/internal/errors"
)

const (
	// DefaultResampleQuality is the sinc window half-width used by beep.
	DefaultResampleQuality = 4
	resampleChunkFrames    = 4096
)

// Resample converts a mono or stereo buffer to the target rate. A buffer
// already at the target rate is returned unchanged.
func Resample(buf *Buffer, target, quality int) (*Buffer, error) {
	if buf == nil {
		return nil, apperrors.ErrNoInput
	}
	if target <= 0 || buf.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: cannot resample %d Hz to %d Hz", apperrors.ErrInvalidAudio, buf.SampleRate, target)
	}
	if buf.Channels != 1 && buf.Channels != 2 {
		return nil, fmt.Errorf("%w: resampling supports mono or stereo, got %d channels", apperrors.ErrInvalidAudio, buf.Channels)
	}
	if quality < 1 || quality > 64 {
		return nil, fmt.Errorf("%w: resample quality must be in [1, 64], got %d", apperrors.ErrInvalidConfig, quality)
	}
	if buf.SampleRate == target {
		return buf, nil
	}

	slog.Debug("resampling audio",
		"from", buf.SampleRate,
		"to", target,
		"frames", buf.Frames(),
	)

	src := &bufferStreamer{buf: buf}
	rs := beep.Resample(quality, beep.SampleRate(buf.SampleRate), beep.SampleRate(target), src)

	expected := int(int64(buf.Frames()) * int64(target) / int64(buf.SampleRate))
	out := make([]float64, 0, expected*buf.Channels)
	chunk := make([][2]float64, resampleChunkFrames)
	for {
		n, ok := rs.Stream(chunk)
		for _, frame := range chunk[:n] {
			if buf.Channels == 1 {
				out = append(out, frame[0])
			} else {
				out = append(out, frame[0], frame[1])
			}
		}
		if !ok || n == 0 {
			break
		}
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	return &Buffer{SampleRate: target, Channels: buf.Channels, Samples: out}, nil
}

// bufferStreamer exposes a Buffer as a beep.Streamer. Mono samples are
// duplicated into both slots of the frame.
type bufferStreamer struct {
	buf *Buffer
	pos int
}

func (s *bufferStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	frames := s.buf.Frames()
	if s.pos >= frames {
		return 0, false
	}
	ch := s.buf.Channels
	for n < len(samples) && s.pos < frames {
		base := s.pos * ch
		samples[n][0] = s.buf.Samples[base]
		samples[n][1] = s.buf.Samples[base+ch-1]
		n++
		s.pos++
	}
	return n, true
}

func (s *bufferStreamer) Err() error { return nil }
