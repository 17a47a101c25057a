// Package pitch turns detected frequencies into MIDI note numbers and decides
// which detections are kept for the score.
package pitch

import "math"

// Standard tuning reference: A4 = 440 Hz = MIDI 69.
const (
	ReferenceHz   = 440.0
	ReferenceMIDI = 69
)

// FrequencyToMIDI returns the real-valued MIDI pitch for freq.
// freq must be finite and positive.
func FrequencyToMIDI(freq float64) float64 {
	return 12*math.Log2(freq/ReferenceHz) + ReferenceMIDI
}

// Quantize returns the nearest MIDI note number for freq. Exact halfway
// values round to the even note. freq must be finite and positive; the
// Policy filter guarantees that for everything it accepts.
func Quantize(freq float64) int {
	return int(math.RoundToEven(FrequencyToMIDI(freq)))
}

// MIDIToFrequency is the inverse of FrequencyToMIDI for whole notes.
func MIDIToFrequency(note int) float64 {
	return ReferenceHz * math.Pow(2, float64(note-ReferenceMIDI)/12)
}
