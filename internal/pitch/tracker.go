package pitch

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Tracker finds onset frames in mono audio and reports the strongest pitch
// candidate at each of them, in temporal order.
type Tracker interface {
	Track(ctx context.Context, samples []float64, sampleRate int) ([]Candidate, error)
}

// STFTTracker is a Tracker built on a short-time Fourier transform. Pitches
// come from interpolated spectral peaks, onsets from peak-picked spectral flux.
type STFTTracker struct {
	FrameSize int     // FFT size in samples
	HopSize   int     // samples between frames
	MinHz     float64 // lowest frequency considered for peaks
	MaxHz     float64 // highest frequency considered for peaks
	Threshold float64 // peak threshold relative to the loudest bin of the frame

	Onsets OnsetConfig
}

// OnsetConfig holds the peak picking windows (in seconds) and thresholds.
type OnsetConfig struct {
	PreMax  float64
	PostMax float64
	PreAvg  float64
	PostAvg float64
	Wait    float64
	Delta   float64
	TopDB   float64
}

// DefaultOnsetConfig returns the usual onset picking parameters.
func DefaultOnsetConfig() OnsetConfig {
	return OnsetConfig{
		PreMax:  0.03,
		PostMax: 0.0,
		PreAvg:  0.10,
		PostAvg: 0.10,
		Wait:    0.03,
		Delta:   0.07,
		TopDB:   80,
	}
}

// NewSTFTTracker creates a tracker with a 2048-sample frame and 512-sample hop.
func NewSTFTTracker() *STFTTracker {
	return &STFTTracker{
		FrameSize: 2048,
		HopSize:   512,
		MinHz:     150,
		MaxHz:     4000,
		Threshold: 0.1,
		Onsets:    DefaultOnsetConfig(),
	}
}

// Track implements Tracker.
func (t *STFTTracker) Track(ctx context.Context, samples []float64, sampleRate int) ([]Candidate, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("track: invalid sample rate %d", sampleRate)
	}
	if t.FrameSize < 4 || t.HopSize < 1 {
		return nil, fmt.Errorf("track: invalid frame/hop size %d/%d", t.FrameSize, t.HopSize)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	spec, err := t.spectrogram(ctx, samples)
	if err != nil {
		return nil, err
	}

	envelope := t.onsetStrength(spec)
	frameRate := float64(sampleRate) / float64(t.HopSize)
	onsets := pickPeaks(envelope, t.Onsets, frameRate)
	if len(onsets) == 0 {
		return nil, nil
	}

	candidates := make([]Candidate, 0, len(onsets))
	for _, frame := range onsets {
		freq, mag := t.strongestPeak(spec[frame], sampleRate)
		candidates = append(candidates, Candidate{
			Frequency: freq,
			Salience:  mag,
			Frame:     frame,
		})
	}
	return candidates, nil
}

// spectrogram returns magnitude frames of FrameSize/2+1 bins. Frames are
// centered: frame i covers samples [i*hop - n/2, i*hop + n/2), zero padded.
func (t *STFTTracker) spectrogram(ctx context.Context, samples []float64) ([][]float64, error) {
	n := t.FrameSize
	half := n / 2
	bins := half + 1
	frames := 1 + len(samples)/t.HopSize
	win := window.Hann(n)

	spec := make([][]float64, frames)
	buf := make([]float64, n)
	for i := range frames {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		start := i*t.HopSize - half
		for j := range n {
			idx := start + j
			if idx < 0 || idx >= len(samples) {
				buf[j] = 0
				continue
			}
			buf[j] = samples[idx] * win[j]
		}

		coeffs := fft.FFTReal(buf)
		mags := make([]float64, bins)
		for k := range bins {
			mags[k] = cmplx.Abs(coeffs[k])
		}
		spec[i] = mags
	}
	return spec, nil
}

// strongestPeak picks the highest interpolated spectral peak of one frame.
// A frame without peaks yields frequency 0.
func (t *STFTTracker) strongestPeak(mags []float64, sampleRate int) (freq, mag float64) {
	binHz := float64(sampleRate) / float64(t.FrameSize)

	var frameMax float64
	for _, m := range mags {
		if m > frameMax {
			frameMax = m
		}
	}
	ref := t.Threshold * frameMax

	for k := 1; k < len(mags)-1; k++ {
		binFreq := float64(k) * binHz
		if binFreq < t.MinHz || binFreq >= t.MaxHz {
			continue
		}
		m := mags[k]
		if m <= ref || m <= mags[k-1] || m < mags[k+1] {
			continue
		}

		// Parabolic interpolation around the local maximum.
		avg := 0.5 * (mags[k+1] - mags[k-1])
		curve := 2*m - mags[k+1] - mags[k-1]
		var shift float64
		if curve != 0 {
			shift = avg / curve
		}
		peakMag := m + 0.5*avg*shift
		if peakMag > mag {
			mag = peakMag
			freq = (float64(k) + shift) * binHz
		}
	}
	return freq, mag
}

// onsetLag is how many frames the flux envelope trails the spectrogram:
// half a window, so the frame reported for an onset is centered inside the
// new note rather than on its leading edge.
func (t *STFTTracker) onsetLag() int {
	return t.FrameSize / (2 * t.HopSize)
}

// onsetStrength computes positive spectral flux on a dB scale referenced to
// the loudest bin, floored TopDB below it, delayed by onsetLag frames.
func (t *STFTTracker) onsetStrength(spec [][]float64) []float64 {
	var globalMax float64
	for _, frame := range spec {
		for _, m := range frame {
			if m > globalMax {
				globalMax = m
			}
		}
	}

	envelope := make([]float64, len(spec))
	if globalMax == 0 {
		return envelope
	}

	floor := -t.Onsets.TopDB
	toDB := func(m float64) float64 {
		db := 20 * math.Log10(math.Max(m, 1e-10)/globalMax)
		return math.Max(db, floor)
	}

	lag := t.onsetLag()
	prev := make([]float64, len(spec[0]))
	cur := make([]float64, len(spec[0]))
	for k, m := range spec[0] {
		prev[k] = toDB(m)
	}
	for i := 1; i+lag < len(spec); i++ {
		var flux float64
		for k, m := range spec[i] {
			cur[k] = toDB(m)
			if d := cur[k] - prev[k]; d > 0 {
				flux += d
			}
		}
		envelope[i+lag] = flux / float64(len(cur))
		prev, cur = cur, prev
	}
	return envelope
}

// pickPeaks returns the frames whose normalized envelope value is a local
// maximum that rises Delta above the local mean, at least Wait apart.
func pickPeaks(envelope []float64, cfg OnsetConfig, frameRate float64) []int {
	n := len(envelope)
	if n == 0 {
		return nil
	}

	lo, hi := envelope[0], envelope[0]
	for _, v := range envelope {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo == 0 {
		return nil
	}
	x := make([]float64, n)
	for i, v := range envelope {
		x[i] = (v - lo) / (hi - lo)
	}

	preMax := int(cfg.PreMax * frameRate)
	postMax := int(cfg.PostMax*frameRate) + 1
	preAvg := int(cfg.PreAvg * frameRate)
	postAvg := int(cfg.PostAvg*frameRate) + 1
	wait := int(cfg.Wait * frameRate)

	var peaks []int
	last := -1
	for i := range n {
		from, to := max(0, i-preMax), min(n, i+postMax)
		localMax := x[from]
		for _, v := range x[from:to] {
			localMax = math.Max(localMax, v)
		}
		if x[i] != localMax {
			continue
		}

		from, to = max(0, i-preAvg), min(n, i+postAvg)
		var sum float64
		for _, v := range x[from:to] {
			sum += v
		}
		if x[i] < sum/float64(to-from)+cfg.Delta {
			continue
		}

		if last >= 0 && i <= last+wait {
			continue
		}
		peaks = append(peaks, i)
		last = i
	}
	return peaks
}
