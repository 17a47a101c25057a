package score

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	apperrors "github.com/VirginiaXiao148/Pitch-Detector/internal/errors"
)

const (
	// Divisions is the number of duration units per quarter note.
	Divisions  = 480
	beats      = 4
	beatType   = 4
	measureLen = Divisions * beats

	musicXMLVersion = "4.0"
	musicXMLDoctype = `<!DOCTYPE score-partwise PUBLIC "-//Recordare//DTD MusicXML 4.0 Partwise//EN" "http://www.musicxml.org/dtds/partwise.dtd">`
)

// Emitter writes scores as MusicXML partwise documents.
type Emitter struct {
	Software string // encoding software recorded in the header
	PartName string
	Indent   string
}

// NewEmitter returns an emitter with default metadata.
func NewEmitter() *Emitter {
	return &Emitter{
		Software: "pitch-detector",
		PartName: "Melody",
		Indent:   "  ",
	}
}

// Write serializes s to path. The document is written to a temporary file
// in the same directory and renamed into place, so readers never observe a
// partial score. An existing file at path is replaced.
func (e *Emitter) Write(s *Score, path string) error {
	data, err := e.Marshal(s)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp score: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write score: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync score: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close score: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod score: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename score: %w", err)
	}
	return nil
}

// Marshal returns the MusicXML document for s.
func (e *Emitter) Marshal(s *Score) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Encode(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes the MusicXML document for s to w.
func (e *Emitter) Encode(w io.Writer, s *Score) error {
	doc, err := e.document(s)
	if err != nil {
		return err
	}

	if _, err := io.WriteString(w, xml.Header+musicXMLDoctype+"\n"); err != nil {
		return fmt.Errorf("encode score: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", e.Indent)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode score: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode score: %w", err)
	}
	_, err = io.WriteString(w, "\n")
	return err
}

func (e *Emitter) document(s *Score) (*xmlScore, error) {
	if s == nil {
		s = &Score{}
	}
	for i, ev := range s.Events {
		if ev.MIDIPitch < 0 || ev.MIDIPitch > 127 {
			return nil, fmt.Errorf("%w: event %d has pitch %d", apperrors.ErrPitchOutOfRange, i, ev.MIDIPitch)
		}
		if !(ev.QuarterLength > 0) || math.IsInf(ev.QuarterLength, 0) {
			return nil, fmt.Errorf("event %d: invalid quarter length %v", i, ev.QuarterLength)
		}
	}

	doc := &xmlScore{
		Version: musicXMLVersion,
		Identification: xmlIdentification{
			Encoding: xmlEncoding{Software: e.Software},
		},
		PartList: xmlPartList{
			ScoreParts: []xmlScorePart{{ID: "P1", Name: e.PartName}},
		},
	}
	if s.Title != "" {
		doc.Work = &xmlWork{Title: s.Title}
	}

	measures := layoutMeasures(s.Events)
	measures[0].Attributes = &xmlAttributes{
		Divisions: Divisions,
		Key:       xmlKey{Fifths: 0},
		Time:      xmlTime{Beats: strconv.Itoa(beats), BeatType: strconv.Itoa(beatType)},
		Clef:      clefFor(s),
	}
	measures[len(measures)-1].Barline = &xmlBarline{Location: "right", Style: "light-heavy"}

	doc.Parts = []xmlPart{{ID: "P1", Measures: measures}}
	return doc, nil
}

// layoutMeasures fills 4/4 measures in order. Notes that do not fit in the
// current measure are split at the barline and tied. The last measure is
// padded with a rest; an empty score is one whole-measure rest.
func layoutMeasures(events []NoteEvent) []xmlMeasure {
	if len(events) == 0 {
		return []xmlMeasure{{
			Number: "1",
			Notes: []xmlNote{{
				Rest:     &xmlRest{Measure: "yes"},
				Duration: measureLen,
				Voice:    "1",
			}},
		}}
	}

	var measures []xmlMeasure
	cur := xmlMeasure{Number: "1"}
	used := 0

	for _, ev := range events {
		remaining := max(1, int(math.Round(ev.QuarterLength*Divisions)))
		continued := false

		for remaining > 0 {
			if used == measureLen {
				measures = append(measures, cur)
				cur = xmlMeasure{Number: strconv.Itoa(len(measures) + 1)}
				used = 0
			}

			seg := min(remaining, measureLen-used)
			remaining -= seg
			used += seg

			n := pitchedNote(ev.MIDIPitch, seg)
			if continued {
				n.Ties = append(n.Ties, xmlTie{Type: "stop"})
			}
			if remaining > 0 {
				n.Ties = append(n.Ties, xmlTie{Type: "start"})
			}
			if len(n.Ties) > 0 {
				n.Notations = &xmlNotations{Tied: n.Ties}
			}
			cur.Notes = append(cur.Notes, n)
			continued = true
		}
	}

	if used < measureLen {
		rest := xmlNote{Rest: &xmlRest{}, Duration: measureLen - used, Voice: "1"}
		setType(&rest, rest.Duration)
		cur.Notes = append(cur.Notes, rest)
	}
	return append(measures, cur)
}

func pitchedNote(midi, duration int) xmlNote {
	step, alter, octave := spell(midi)
	n := xmlNote{
		Pitch: &xmlPitch{
			Step:   step,
			Alter:  alter,
			Octave: octave,
		},
		Duration: duration,
		Voice:    "1",
	}
	setType(&n, duration)
	return n
}

// noteTypes maps durations in divisions to a note type and dot count.
var noteTypes = map[int]struct {
	name string
	dots int
}{
	1920: {"whole", 0},
	1440: {"half", 1},
	960:  {"half", 0},
	720:  {"quarter", 1},
	480:  {"quarter", 0},
	360:  {"eighth", 1},
	240:  {"eighth", 0},
	180:  {"16th", 1},
	120:  {"16th", 0},
	60:   {"32nd", 0},
}

// setType fills in the graphical type. Durations without a plain or dotted
// type are left untyped.
func setType(n *xmlNote, duration int) {
	t, ok := noteTypes[duration]
	if !ok {
		return
	}
	n.Type = t.name
	n.Dots = make([]xmlEmpty, t.dots)
}

func clefFor(s *Score) xmlClef {
	if s.Len() > 0 && s.MeanPitch() < 60 {
		return xmlClef{Sign: "F", Line: 4}
	}
	return xmlClef{Sign: "G", Line: 2}
}

// ReadMusicXML parses a partwise MusicXML document and returns its notes in
// order. Tied continuations are merged into the note they extend and rests
// are skipped. Only the first part is read.
func ReadMusicXML(r io.Reader) (*Score, error) {
	var doc xmlScore
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: parse musicxml: %v", apperrors.ErrCorruptedFile, err)
	}

	s := &Score{}
	if doc.Work != nil {
		s.Title = doc.Work.Title
	}
	if len(doc.Parts) == 0 {
		return s, nil
	}

	divisions := Divisions
	for _, m := range doc.Parts[0].Measures {
		if m.Attributes != nil && m.Attributes.Divisions > 0 {
			divisions = m.Attributes.Divisions
		}
		for _, n := range m.Notes {
			if n.Pitch == nil {
				continue
			}
			ql := float64(n.Duration) / float64(divisions)
			if n.hasTie("stop") && len(s.Events) > 0 {
				s.Events[len(s.Events)-1].QuarterLength += ql
				continue
			}
			midi, err := n.Pitch.midi()
			if err != nil {
				return nil, err
			}
			s.Events = append(s.Events, NoteEvent{MIDIPitch: midi, QuarterLength: ql})
		}
	}
	return s, nil
}

// ReadMusicXMLFile opens path and parses it with ReadMusicXML.
func ReadMusicXMLFile(path string) (*Score, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open score: %w", err)
	}
	defer f.Close()
	return ReadMusicXML(f)
}

type xmlScore struct {
	XMLName        xml.Name          `xml:"score-partwise"`
	Version        string            `xml:"version,attr"`
	Work           *xmlWork          `xml:"work,omitempty"`
	Identification xmlIdentification `xml:"identification"`
	PartList       xmlPartList       `xml:"part-list"`
	Parts          []xmlPart         `xml:"part"`
}

type xmlWork struct {
	Title string `xml:"work-title"`
}

type xmlIdentification struct {
	Encoding xmlEncoding `xml:"encoding"`
}

type xmlEncoding struct {
	Software string `xml:"software"`
}

type xmlPartList struct {
	ScoreParts []xmlScorePart `xml:"score-part"`
}

type xmlScorePart struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"part-name"`
}

type xmlPart struct {
	ID       string       `xml:"id,attr"`
	Measures []xmlMeasure `xml:"measure"`
}

type xmlMeasure struct {
	Number     string         `xml:"number,attr"`
	Attributes *xmlAttributes `xml:"attributes,omitempty"`
	Notes      []xmlNote      `xml:"note"`
	Barline    *xmlBarline    `xml:"barline,omitempty"`
}

type xmlAttributes struct {
	Divisions int     `xml:"divisions"`
	Key       xmlKey  `xml:"key"`
	Time      xmlTime `xml:"time"`
	Clef      xmlClef `xml:"clef"`
}

type xmlKey struct {
	Fifths int `xml:"fifths"`
}

type xmlTime struct {
	Beats    string `xml:"beats"`
	BeatType string `xml:"beat-type"`
}

type xmlClef struct {
	Sign string `xml:"sign"`
	Line int    `xml:"line"`
}

type xmlNote struct {
	Pitch     *xmlPitch     `xml:"pitch,omitempty"`
	Rest      *xmlRest      `xml:"rest,omitempty"`
	Duration  int           `xml:"duration"`
	Ties      []xmlTie      `xml:"tie"`
	Voice     string        `xml:"voice,omitempty"`
	Type      string        `xml:"type,omitempty"`
	Dots      []xmlEmpty    `xml:"dot"`
	Notations *xmlNotations `xml:"notations,omitempty"`
}

func (n xmlNote) hasTie(kind string) bool {
	for _, t := range n.Ties {
		if t.Type == kind {
			return true
		}
	}
	return false
}

type xmlPitch struct {
	Step   string `xml:"step"`
	Alter  int    `xml:"alter,omitempty"`
	Octave int    `xml:"octave"`
}

func (p *xmlPitch) midi() (int, error) {
	pc, ok := stepClass[p.Step]
	if !ok {
		return 0, fmt.Errorf("%w: unknown step %q", apperrors.ErrCorruptedFile, p.Step)
	}
	return (p.Octave+1)*12 + pc + p.Alter, nil
}

type xmlRest struct {
	Measure string `xml:"measure,attr,omitempty"`
}

type xmlTie struct {
	Type string `xml:"type,attr"`
}

type xmlNotations struct {
	Tied []xmlTie `xml:"tied"`
}

type xmlBarline struct {
	Location string `xml:"location,attr"`
	Style    string `xml:"bar-style"`
}

type xmlEmpty struct{}
