// Package score turns accepted pitch frequencies into note events and
// serializes them as MusicXML.
package score

import (
	"fmt"
	"math"

	"github.com/VirginiaXiao148/Pitch-Detector/internal/pitch"
)

// DefaultNoteDuration is the length of every built note, in quarter notes.
const DefaultNoteDuration = 0.5

// NoteEvent is a single note: a MIDI pitch held for QuarterLength quarters.
type NoteEvent struct {
	MIDIPitch     int
	QuarterLength float64
}

// Name returns the spelled pitch of the event, e.g. "C#4" or "E-5".
func (e NoteEvent) Name() string {
	return NoteName(e.MIDIPitch)
}

// Score is an ordered, monophonic sequence of note events.
type Score struct {
	Title  string
	Events []NoteEvent
}

// Len returns the number of events.
func (s *Score) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Events)
}

// Pitches returns the MIDI pitch of every event in order.
func (s *Score) Pitches() []int {
	if s == nil {
		return nil
	}
	out := make([]int, len(s.Events))
	for i, e := range s.Events {
		out[i] = e.MIDIPitch
	}
	return out
}

// MeanPitch returns the average MIDI pitch, or 0 for an empty score.
func (s *Score) MeanPitch() float64 {
	if s.Len() == 0 {
		return 0
	}
	var sum int
	for _, e := range s.Events {
		sum += e.MIDIPitch
	}
	return float64(sum) / float64(len(s.Events))
}

// Builder creates scores with a fixed note duration.
type Builder struct {
	Duration float64 // quarter lengths per note
	Title    string
}

// NewBuilder returns a builder producing eighth notes.
func NewBuilder() *Builder {
	return &Builder{Duration: DefaultNoteDuration}
}

// Build quantizes each frequency to the nearest MIDI note, one event per
// frequency, preserving order. The frequencies are expected to be filtered
// already. A duration that is not a positive finite number falls back to
// DefaultNoteDuration.
func (b *Builder) Build(freqs []float64) *Score {
	dur := b.Duration
	if !(dur > 0) || math.IsInf(dur, 0) {
		dur = DefaultNoteDuration
	}

	s := &Score{
		Title:  b.Title,
		Events: make([]NoteEvent, 0, len(freqs)),
	}
	for _, f := range freqs {
		s.Events = append(s.Events, NoteEvent{
			MIDIPitch:     pitch.Quantize(f),
			QuarterLength: dur,
		})
	}
	return s
}

// spelling holds step and alteration for each pitch class, sharps for
// C# F# G#, flats for E- B-.
var spelling = [12]struct {
	step  string
	alter int
}{
	{"C", 0}, {"C", 1}, {"D", 0}, {"E", -1}, {"E", 0}, {"F", 0},
	{"F", 1}, {"G", 0}, {"G", 1}, {"A", 0}, {"B", -1}, {"B", 0},
}

var stepClass = map[string]int{"C": 0, "D": 2, "E": 4, "F": 5, "G": 7, "A": 9, "B": 11}

func spell(midi int) (step string, alter, octave int) {
	pc := ((midi % 12) + 12) % 12
	octave = (midi-pc)/12 - 1
	return spelling[pc].step, spelling[pc].alter, octave
}

// NoteName spells a MIDI pitch with its octave.
func NoteName(midi int) string {
	step, alter, octave := spell(midi)
	switch alter {
	case 1:
		step += "#"
	case -1:
		step += "-"
	}
	return fmt.Sprintf("%s%d", step, octave)
}
