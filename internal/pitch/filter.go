package pitch

import (
	"fmt"
	"math"

	apperrors "github.com/VirginiaXiao148/Pitch-Detector/internal/errors"
)

// Default melody range in Hz. Below it sits sub-bass rumble, above it mostly
// harmonics of the sung or played line.
const (
	DefaultLowHz  = 250.0
	DefaultHighHz = 3000.0
)

// Candidate is the strongest pitch found at one onset frame.
// Frequency may be zero or non-finite when the frame had no usable peak.
type Candidate struct {
	Frequency float64
	Salience  float64
	Frame     int
}

// Policy accepts frequencies in the open interval (LowHz, HighHz).
type Policy struct {
	LowHz  float64
	HighHz float64
}

// MelodyPolicy returns the default 250-3000 Hz policy.
func MelodyPolicy() Policy {
	return Policy{LowHz: DefaultLowHz, HighHz: DefaultHighHz}
}

// PermissivePolicy accepts any positive finite frequency.
func PermissivePolicy() Policy {
	return Policy{LowHz: 0, HighHz: math.Inf(1)}
}

// Validate rejects bounds that would let non-positive frequencies through or
// that describe an empty interval.
func (p Policy) Validate() error {
	if math.IsNaN(p.LowHz) || math.IsInf(p.LowHz, 0) || p.LowHz < 0 {
		return fmt.Errorf("%w: low_hz must be a finite value >= 0, got %v", apperrors.ErrInvalidConfig, p.LowHz)
	}
	if math.IsNaN(p.HighHz) || p.HighHz <= p.LowHz {
		return fmt.Errorf("%w: high_hz (%v) must be greater than low_hz (%v)", apperrors.ErrInvalidConfig, p.HighHz, p.LowHz)
	}
	return nil
}

// Accept reports whether freq is finite and strictly inside the policy range.
func (p Policy) Accept(freq float64) bool {
	if math.IsNaN(freq) || math.IsInf(freq, 0) {
		return false
	}
	return freq > p.LowHz && freq < p.HighHz
}

// Filter keeps the frequencies of accepted candidates in their original order.
// Rejected frames leave no trace in the output.
func (p Policy) Filter(candidates []Candidate) []float64 {
	accepted := make([]float64, 0, len(candidates))
	for _, c := range candidates {
		if p.Accept(c.Frequency) {
			accepted = append(accepted, c.Frequency)
		}
	}
	return accepted
}

func (p Policy) String() string {
	return fmt.Sprintf("(%g Hz, %g Hz)", p.LowHz, p.HighHz)
}
