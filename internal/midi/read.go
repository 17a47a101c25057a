package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	apperrors "github.com/VirginiaXiao148/Pitch-Detector/internal/errors"
)

// File is the decoded content of an SMF
type File struct {
	Tempo float64
	Notes []Note
}

// ReadFile decodes the notes of every track in an SMF, ordered by track
// and start time. Unterminated notes are dropped.
func ReadFile(path string) (*File, error) {
	s, err := smf.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read midi: %v", apperrors.ErrCorruptedFile, err)
	}

	resolution := float64(TicksPerQuarter)
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		resolution = float64(mt.Resolution())
	}

	out := &File{Tempo: DefaultTempo}
	for _, tr := range s.Tracks {
		var now uint64
		open := make(map[uint8]int) // key -> index into out.Notes

		for _, ev := range tr {
			now += uint64(ev.Delta)
			pos := float64(now) / resolution

			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) {
				out.Tempo = bpm
				continue
			}

			msg := gomidi.Message(ev.Message)
			var ch, key, vel uint8
			switch {
			case msg.GetNoteStart(&ch, &key, &vel):
				open[key] = len(out.Notes)
				out.Notes = append(out.Notes, Note{
					Pitch:    int(key),
					Start:    pos,
					Velocity: int(vel),
					Duration: -1,
				})
			case msg.GetNoteEnd(&ch, &key):
				if i, ok := open[key]; ok {
					out.Notes[i].Duration = pos - out.Notes[i].Start
					delete(open, key)
				}
			}
		}
	}

	notes := out.Notes[:0]
	for _, n := range out.Notes {
		if n.Duration >= 0 {
			notes = append(notes, n)
		}
	}
	out.Notes = notes
	return out, nil
}

// Pitches returns the pitch of every note in order.
func (f *File) Pitches() []int {
	out := make([]int, len(f.Notes))
	for i, n := range f.Notes {
		out[i] = n.Pitch
	}
	return out
}
