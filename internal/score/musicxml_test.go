package score

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	apperrors "github.com/VirginiaXiao148/Pitch-Detector/internal/errors"
)

func TestWriteAndReadBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.xml")

	s := NewBuilder().Build([]float64{440.0, 493.88, 523.25})
	s.Title = "Test Melody"
	if err := NewEmitter().Write(s, path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := ReadMusicXMLFile(path)
	if err != nil {
		t.Fatalf("ReadMusicXMLFile: %v", err)
	}
	if want := []int{69, 71, 72}; !slices.Equal(got.Pitches(), want) {
		t.Errorf("pitches = %v, want %v", got.Pitches(), want)
	}
	for i, ev := range got.Events {
		if ev.QuarterLength != 0.5 {
			t.Errorf("event %d length = %v, want 0.5", i, ev.QuarterLength)
		}
	}
	if got.Title != "Test Melody" {
		t.Errorf("title = %q", got.Title)
	}

	// Only the final file remains in the directory.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "out.xml" {
		t.Errorf("unexpected directory contents: %v", entries)
	}
}

func TestWriteReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xml")
	if err := os.WriteFile(path, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	s := &Score{Events: []NoteEvent{{MIDIPitch: 60, QuarterLength: 1}}}
	if err := NewEmitter().Write(s, path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("<?xml")) {
		t.Errorf("file was not replaced: %q", data[:min(len(data), 20)])
	}
}

func TestMarshalStructure(t *testing.T) {
	s := &Score{Events: []NoteEvent{
		{MIDIPitch: 69, QuarterLength: 0.5},
		{MIDIPitch: 63, QuarterLength: 1},
	}}

	data, err := NewEmitter().Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out := string(data)

	for _, want := range []string{
		`<score-partwise version="4.0">`,
		`<!DOCTYPE score-partwise`,
		`<divisions>480</divisions>`,
		`<fifths>0</fifths>`,
		`<beats>4</beats>`,
		`<beat-type>4</beat-type>`,
		`<sign>G</sign>`,
		`<step>E</step>`,
		`<alter>-1</alter>`,
		`<type>eighth</type>`,
		`<bar-style>light-heavy</bar-style>`,
		`<software>pitch-detector</software>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s", want)
		}
	}
}

func TestEmptyScoreIsWholeRest(t *testing.T) {
	data, err := NewEmitter().Marshal(&Score{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out := string(data)

	if !strings.Contains(out, `<rest measure="yes">`) {
		t.Error("expected a whole-measure rest")
	}
	if !strings.Contains(out, `<duration>1920</duration>`) {
		t.Error("expected the rest to fill the measure")
	}
	if strings.Contains(out, "<pitch>") {
		t.Error("empty score should contain no pitched notes")
	}

	got, err := ReadMusicXML(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadMusicXML: %v", err)
	}
	if got.Len() != 0 {
		t.Errorf("expected no notes, got %v", got.Pitches())
	}
}

func TestTiesAcrossBarline(t *testing.T) {
	// Three dotted quarters: the third crosses the first barline.
	s := (&Builder{Duration: 1.5}).Build([]float64{440, 440, 523.25})

	data, err := NewEmitter().Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out := string(data)

	if n := strings.Count(out, `<tie type="start">`); n != 1 {
		t.Errorf("tie starts = %d, want 1", n)
	}
	if n := strings.Count(out, `<tie type="stop">`); n != 1 {
		t.Errorf("tie stops = %d, want 1", n)
	}
	if n := strings.Count(out, "<measure "); n != 2 {
		t.Errorf("measures = %d, want 2", n)
	}

	got, err := ReadMusicXML(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadMusicXML: %v", err)
	}
	if want := []int{69, 69, 72}; !slices.Equal(got.Pitches(), want) {
		t.Fatalf("pitches = %v, want %v", got.Pitches(), want)
	}
	for i, ev := range got.Events {
		if ev.QuarterLength != 1.5 {
			t.Errorf("event %d length = %v, want 1.5", i, ev.QuarterLength)
		}
	}
}

func TestClefFollowsRegister(t *testing.T) {
	low := &Score{Events: []NoteEvent{{MIDIPitch: 48, QuarterLength: 1}, {MIDIPitch: 55, QuarterLength: 1}}}
	data, err := NewEmitter().Marshal(low)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), "<sign>F</sign>") {
		t.Error("expected bass clef for a low melody")
	}
}

func TestMarshalRejectsInvalidEvents(t *testing.T) {
	tests := []struct {
		name string
		ev   NoteEvent
	}{
		{"NegativePitch", NoteEvent{MIDIPitch: -5, QuarterLength: 1}},
		{"HighPitch", NoteEvent{MIDIPitch: 128, QuarterLength: 1}},
		{"ZeroLength", NoteEvent{MIDIPitch: 60, QuarterLength: 0}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewEmitter().Marshal(&Score{Events: []NoteEvent{tc.ev}}); err == nil {
				t.Error("expected error")
			}
		})
	}

	_, err := NewEmitter().Marshal(&Score{Events: []NoteEvent{{MIDIPitch: 200, QuarterLength: 1}}})
	if !errors.Is(err, apperrors.ErrPitchOutOfRange) {
		t.Errorf("expected ErrPitchOutOfRange, got %v", err)
	}
}

func TestReadMusicXMLGarbage(t *testing.T) {
	if _, err := ReadMusicXML(strings.NewReader("not xml at all <")); !errors.Is(err, apperrors.ErrCorruptedFile) {
		t.Errorf("expected ErrCorruptedFile, got %v", err)
	}
}
