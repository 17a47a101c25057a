package progress

import (
	"fmt"
	"io"
	"time"
)

// Stage represents a processing stage
type Stage struct {
	Number      int
	Total       int
	Name        string
	Description string
}

// Transcription stages, in pipeline order
var (
	StageLoad     = Stage{1, 5, "load", "Loading audio..."}
	StageResample = Stage{2, 5, "resample", "Resampling audio..."}
	StageDetect   = Stage{3, 5, "detect", "Detecting pitches..."}
	StageBuild    = Stage{4, 5, "build", "Building note sequence..."}
	StageEmit     = Stage{5, 5, "emit", "Writing sheet music..."}
)

// Stages lists every stage in order.
var Stages = []Stage{StageLoad, StageResample, StageDetect, StageBuild, StageEmit}

// Reporter handles CLI progress output. A nil Reporter discards everything.
type Reporter struct {
	out       io.Writer
	startTime time.Time
	verbose   bool
}

// NewReporter creates a new progress reporter
func NewReporter(out io.Writer, verbose bool) *Reporter {
	return &Reporter{
		out:       out,
		startTime: time.Now(),
		verbose:   verbose,
	}
}

// StartStage announces the beginning of a processing stage
func (r *Reporter) StartStage(stage Stage) {
	if r == nil {
		return
	}
	fmt.Fprintf(r.out, "[%d/%d] %s\n", stage.Number, stage.Total, stage.Description)
}

// Update shows a sub-progress message within a stage
func (r *Reporter) Update(format string, args ...any) {
	if r == nil || !r.verbose {
		return
	}
	fmt.Fprintf(r.out, "       %s\n", fmt.Sprintf(format, args...))
}

// StageComplete shows completion message for a stage
func (r *Reporter) StageComplete(format string, args ...any) {
	if r == nil {
		return
	}
	fmt.Fprintf(r.out, "       %s\n", fmt.Sprintf(format, args...))
}

// Done announces successful completion
func (r *Reporter) Done(outputPath string) {
	if r == nil {
		return
	}
	elapsed := time.Since(r.startTime)
	fmt.Fprintln(r.out, "Done! Sheet music generated successfully.")
	if outputPath != "" {
		fmt.Fprintf(r.out, "Output saved to: %s\n", outputPath)
	}
	fmt.Fprintf(r.out, "Completed in %.1f seconds\n", elapsed.Seconds())
}

// Error announces an error
func (r *Reporter) Error(err error) {
	if r == nil {
		return
	}
	fmt.Fprintf(r.out, "Error: %s\n", err)
}

// Warning announces a non-fatal warning
func (r *Reporter) Warning(format string, args ...any) {
	if r == nil {
		return
	}
	fmt.Fprintf(r.out, "Warning: %s\n", fmt.Sprintf(format, args...))
}
