package pipeline

import (
	"fmt"
	"time"

	apperrors "github.com/VirginiaXiao148/Pitch-Detector/internal/errors"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/score"
)

const (
	msgSuccess   = "Transcription completed. %d pitches detected."
	msgNoInput   = "No audio provided."
	msgNoPitches = "No pitches detected in the audio."
	msgFailure   = "An error occurred: %v"
)

// FailureKind classifies an unsuccessful transcription.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureNoInput
	FailureNoPitches
	FailureDetection // detection, decoding or I/O failure
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "success"
	case FailureNoInput:
		return "no_input"
	case FailureNoPitches:
		return "no_pitches"
	case FailureDetection:
		return "error"
	}
	return fmt.Sprintf("FailureKind(%d)", int(k))
}

// Result is the outcome of one transcription. OutputPath and Content are
// empty unless a score was written.
type Result struct {
	Success    bool
	Kind       FailureKind
	Message    string
	OutputPath string
	MIDIPath   string
	Content    string            // MusicXML as written to OutputPath
	Pitches    []float64         // accepted frequencies in Hz
	Notes      []score.NoteEvent // one per accepted frequency
	Err        error
	Duration   time.Duration
}

func noInputResult() *Result {
	return &Result{
		Kind:    FailureNoInput,
		Message: msgNoInput,
		Err:     apperrors.ErrNoInput,
	}
}

func noPitchesResult() *Result {
	return &Result{
		Kind:    FailureNoPitches,
		Message: msgNoPitches,
		Err:     apperrors.ErrNoPitches,
	}
}

func failureResult(err error) *Result {
	return &Result{
		Kind:    FailureDetection,
		Message: fmt.Sprintf(msgFailure, err),
		Err:     err,
	}
}
