package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/VirginiaXiao148/Pitch-Detector/internal/audio"
	apperrors "github.com/VirginiaXiao148/Pitch-Detector/internal/errors"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/midi"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/observe"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/pitch"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/progress"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/score"
)

// Config holds pipeline configuration
type Config struct {
	SampleRate      int          // working rate the tracker runs at
	ResampleQuality int          // beep resampler quality, 1..64
	Policy          pitch.Policy // accepted frequency band
	NoteDuration    float64      // quarter lengths per note
	Title           string
	OutputPath      string  // MusicXML destination
	MIDIPath        string  // optional SMF destination
	Tempo           float64 // SMF tempo in bpm
}

// DefaultConfig returns default pipeline configuration
func DefaultConfig() Config {
	return Config{
		SampleRate:      44100,
		ResampleQuality: audio.DefaultResampleQuality,
		Policy:          pitch.MelodyPolicy(),
		NoteDuration:    score.DefaultNoteDuration,
		OutputPath:      "output_sheet_music.xml",
		Tempo:           midi.DefaultTempo,
	}
}

// Validate checks the configuration before any audio is touched.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("%w: sample rate must be positive, got %d", apperrors.ErrInvalidConfig, c.SampleRate))
	}
	if c.ResampleQuality < 1 || c.ResampleQuality > 64 {
		errs = append(errs, fmt.Errorf("%w: resample quality must be in [1, 64], got %d", apperrors.ErrInvalidConfig, c.ResampleQuality))
	}
	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !(c.NoteDuration > 0) {
		errs = append(errs, fmt.Errorf("%w: note duration must be positive, got %v", apperrors.ErrInvalidConfig, c.NoteDuration))
	}
	if c.OutputPath == "" {
		errs = append(errs, fmt.Errorf("%w: output path is required", apperrors.ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// ScoreWriter persists a score at a path. Both the MusicXML emitter and the
// SMF exporter implement it.
type ScoreWriter interface {
	Write(s *score.Score, path string) error
}

// Capturer records a clip from a live input.
type Capturer interface {
	Capture(ctx context.Context) (audio.Source, error)
}

// Orchestrator runs one clip through load, resample, detection, filtering,
// note building and emission. It holds no per-run state and may be shared
// between goroutines as long as each run writes to its own output path.
type Orchestrator struct {
	cfg      Config
	tracker  pitch.Tracker
	emitter  ScoreWriter
	exporter ScoreWriter
	progress *progress.Reporter
	metrics  *observe.Metrics
	logger   *slog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithTracker replaces the STFT pitch tracker.
func WithTracker(t pitch.Tracker) Option {
	return func(o *Orchestrator) { o.tracker = t }
}

// WithEmitter replaces the MusicXML emitter.
func WithEmitter(w ScoreWriter) Option {
	return func(o *Orchestrator) { o.emitter = w }
}

// WithMIDIExporter replaces the SMF exporter.
func WithMIDIExporter(w ScoreWriter) Option {
	return func(o *Orchestrator) { o.exporter = w }
}

// WithProgress prints stage progress to r.
func WithProgress(r *progress.Reporter) Option {
	return func(o *Orchestrator) { o.progress = r }
}

// WithMetrics records into m instead of the default instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates a new pipeline orchestrator
func NewOrchestrator(cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}

	if o.tracker == nil {
		o.tracker = pitch.NewSTFTTracker()
	}
	if o.emitter == nil {
		o.emitter = score.NewEmitter()
	}
	if o.exporter == nil {
		exp := midi.NewExporter()
		if cfg.Tempo > 0 {
			exp.Tempo = cfg.Tempo
		}
		o.exporter = exp
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "pipeline")
	return o, nil
}

// Config returns the configuration the orchestrator was built with.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// WithOutput returns a copy of o that writes to the given paths. An empty
// midiPath disables SMF export.
func (o *Orchestrator) WithOutput(outputPath, midiPath string) *Orchestrator {
	c := *o
	c.cfg.OutputPath = outputPath
	c.cfg.MIDIPath = midiPath
	return &c
}

// Transcribe runs src through the pipeline. A nil src yields the no-input
// result. Transcribe never panics; every failure is reported in the Result.
func (o *Orchestrator) Transcribe(ctx context.Context, src audio.Source) *Result {
	return o.run(ctx, "source", func(context.Context) (*audio.Buffer, error) {
		if src == nil {
			return nil, apperrors.ErrNoInput
		}
		return src.Normalize()
	})
}

// TranscribeFile loads the WAV or MP3 file at path and transcribes it. An
// empty path yields the no-input result.
func (o *Orchestrator) TranscribeFile(ctx context.Context, path string) *Result {
	return o.run(ctx, "file", func(context.Context) (*audio.Buffer, error) {
		src, err := audio.Load(path)
		if err != nil {
			return nil, err
		}
		return src.Normalize()
	})
}

// TranscribeCapture records a clip with c and transcribes it. Recording
// blocks for the capturer's configured duration.
func (o *Orchestrator) TranscribeCapture(ctx context.Context, c Capturer) *Result {
	return o.run(ctx, "capture", func(ctx context.Context) (*audio.Buffer, error) {
		if c == nil {
			return nil, apperrors.ErrNoInput
		}
		src, err := c.Capture(ctx)
		if err != nil {
			return nil, err
		}
		if src == nil {
			return nil, apperrors.ErrNoInput
		}
		return src.Normalize()
	})
}

type loadFunc func(ctx context.Context) (*audio.Buffer, error)

func (o *Orchestrator) run(ctx context.Context, input string, load loadFunc) (res *Result) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "pipeline.Transcribe",
		trace.WithAttributes(attribute.String("input", input)),
	)
	defer span.End()
	logger := observe.Logger(ctx, o.logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("transcription panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			res = failureResult(fmt.Errorf("internal error: %v", r))
		}
		res.Duration = time.Since(start)
		o.finish(ctx, span, logger, res)
	}()

	// Start -> Loaded
	var buf *audio.Buffer
	err := o.stage(ctx, progress.StageLoad, func(ctx context.Context) error {
		var err error
		buf, err = load(ctx)
		if err != nil {
			return err
		}
		o.progress.StageComplete("%d Hz, %.2fs", buf.SampleRate, buf.Duration().Seconds())
		return nil
	})
	if errors.Is(err, apperrors.ErrNoInput) {
		return noInputResult()
	}
	if err != nil {
		return failureResult(err)
	}

	// Loaded -> Resampled
	err = o.stage(ctx, progress.StageResample, func(ctx context.Context) error {
		var err error
		buf, err = audio.Resample(buf, o.cfg.SampleRate, o.cfg.ResampleQuality)
		return err
	})
	if err != nil {
		return failureResult(err)
	}

	// Resampled -> Filtered
	var accepted []float64
	err = o.stage(ctx, progress.StageDetect, func(ctx context.Context) error {
		candidates, err := o.tracker.Track(ctx, buf.Samples, buf.SampleRate)
		if err != nil {
			return fmt.Errorf("pitch tracking: %w", err)
		}
		accepted = o.cfg.Policy.Filter(candidates)
		o.progress.StageComplete("%d onsets, %d pitches in %s", len(candidates), len(accepted), o.cfg.Policy)
		logger.Debug("pitch candidates filtered",
			"candidates", len(candidates),
			"accepted", len(accepted),
			"policy", o.cfg.Policy.String(),
		)
		return nil
	})
	if err != nil {
		return failureResult(err)
	}

	// Filtered -> EmptyResult
	if len(accepted) == 0 {
		return noPitchesResult()
	}

	// Filtered -> Built
	var s *score.Score
	_ = o.stage(ctx, progress.StageBuild, func(context.Context) error {
		b := &score.Builder{Duration: o.cfg.NoteDuration, Title: o.cfg.Title}
		s = b.Build(accepted)
		o.progress.StageComplete("%d notes", s.Len())
		return nil
	})

	// Built -> Emitted
	var content []byte
	err = o.stage(ctx, progress.StageEmit, func(context.Context) error {
		if err := o.emitter.Write(s, o.cfg.OutputPath); err != nil {
			return fmt.Errorf("write score: %w", err)
		}
		if o.cfg.MIDIPath != "" {
			if err := o.exporter.Write(s, o.cfg.MIDIPath); err != nil {
				return fmt.Errorf("write midi: %w", err)
			}
		}
		var err error
		content, err = os.ReadFile(o.cfg.OutputPath)
		if err != nil {
			return fmt.Errorf("read back score: %w", err)
		}
		return nil
	})
	if err != nil {
		return failureResult(err)
	}

	// Emitted -> Success
	return &Result{
		Success:    true,
		Kind:       FailureNone,
		Message:    fmt.Sprintf(msgSuccess, len(accepted)),
		OutputPath: o.cfg.OutputPath,
		MIDIPath:   o.cfg.MIDIPath,
		Content:    string(content),
		Pitches:    accepted,
		Notes:      s.Events,
	}
}

// stage runs fn inside a span, reports progress and records its latency.
func (o *Orchestrator) stage(ctx context.Context, st progress.Stage, fn func(context.Context) error) error {
	o.progress.StartStage(st)
	ctx, span := observe.StartSpan(ctx, "pipeline."+st.Name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	o.metrics.RecordStage(ctx, st.Name, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, logger *slog.Logger, res *Result) {
	o.metrics.RecordTranscription(ctx, res.Kind.String(), res.Duration.Seconds(), len(res.Pitches))
	span.SetAttributes(
		attribute.String("outcome", res.Kind.String()),
		attribute.Int("pitches", len(res.Pitches)),
	)

	switch res.Kind {
	case FailureNone:
		logger.Info("transcription completed",
			"pitches", len(res.Pitches),
			"output", res.OutputPath,
			"duration", res.Duration,
		)
	case FailureDetection:
		span.SetStatus(codes.Error, res.Err.Error())
		logger.Error("transcription failed", "error", res.Err, "duration", res.Duration)
	default:
		logger.Warn("transcription produced no score", "reason", res.Message)
	}
}
