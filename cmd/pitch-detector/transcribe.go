package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/VirginiaXiao148/Pitch-Detector/internal/audio"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/config"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/exec"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/pipeline"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/progress"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/workspace"
)

type transcribeOptions struct {
	input        string
	url          string
	record       time.Duration
	output       string
	midiOut      string
	lowHz        float64
	highHz       float64
	noteDuration float64
	title        string
	tempo        float64
}

func newTranscribeCmd(global *globalOptions) *cobra.Command {
	opts := &transcribeOptions{}

	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe an audio file, a YouTube video or a microphone take",
		Long: `Detect the melody of a clip and write it as MusicXML.

Exactly one source is used: --input, --url or --record. Without any of them
the run reports that no audio was provided.

Examples:
  pitch-detector transcribe --input melody.wav
  pitch-detector transcribe -i take.mp3 -o take.musicxml --midi-out take.mid
  pitch-detector transcribe --record 5s --low-hz 80
  pitch-detector transcribe --url "https://youtube.com/watch?v=..."`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd, global, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "Input audio file (WAV or MP3)")
	f.StringVarP(&opts.url, "url", "u", "", "YouTube URL to transcribe")
	f.DurationVar(&opts.record, "record", 0, "Record from the microphone for this long (0 uses the configured duration)")
	f.StringVarP(&opts.output, "output", "o", "", "MusicXML output file (default output_sheet_music.xml)")
	f.StringVar(&opts.midiOut, "midi-out", "", "Also write a Standard MIDI File")
	f.Float64Var(&opts.lowHz, "low-hz", 0, "Lowest accepted frequency, exclusive")
	f.Float64Var(&opts.highHz, "high-hz", 0, "Highest accepted frequency, exclusive")
	f.Float64Var(&opts.noteDuration, "note-duration", 0, "Length of every note in quarter notes")
	f.StringVar(&opts.title, "title", "", "Work title written into the score")
	f.Float64Var(&opts.tempo, "tempo", 0, "MIDI tempo in beats per minute")
	cmd.MarkFlagsMutuallyExclusive("input", "url", "record")

	return cmd
}

// applyTranscribeFlags overrides cfg with the flags the user actually set.
func applyTranscribeFlags(cmd *cobra.Command, opts *transcribeOptions, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("output") {
		cfg.Score.OutputPath = opts.output
	}
	if f.Changed("midi-out") {
		cfg.Score.MIDIOutput = opts.midiOut
	}
	if f.Changed("low-hz") {
		cfg.Filter.LowHz = opts.lowHz
	}
	if f.Changed("high-hz") {
		cfg.Filter.HighHz = opts.highHz
	}
	if f.Changed("note-duration") {
		cfg.Score.NoteDuration = opts.noteDuration
	}
	if f.Changed("title") {
		cfg.Score.Title = opts.title
	}
	if f.Changed("tempo") {
		cfg.Score.Tempo = opts.tempo
	}
	if opts.record > 0 {
		cfg.Capture.Duration = opts.record
	}
	return config.Validate(cfg)
}

func runTranscribe(cmd *cobra.Command, global *globalOptions, opts *transcribeOptions) error {
	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	if err := applyTranscribeFlags(cmd, opts, cfg); err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	reporter := progress.NewReporter(out, global.verbose)
	runner := exec.NewRunner()

	input := opts.input
	if opts.url != "" {
		if !audio.IsYouTubeURL(opts.url) {
			return fmt.Errorf("invalid YouTube URL: %s", opts.url)
		}
		ws, err := workspace.Create("")
		if err != nil {
			return err
		}
		defer ws.Cleanup()

		downloader := audio.NewYouTubeDownloader(runner)
		if cfg.Score.Title == "" {
			titleCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			title, err := downloader.GetVideoTitle(titleCtx, opts.url)
			cancel()
			if err != nil {
				reporter.Warning("could not fetch video title: %v", err)
			} else {
				cfg.Score.Title = title
			}
		}

		reporter.Update("Downloading %s", opts.url)
		input, err = downloader.Download(ctx, opts.url, ws.Dir)
		if err != nil {
			reporter.Error(err)
			return errTranscriptionFailed
		}
	}

	orch, err := pipeline.NewOrchestrator(pipelineConfig(cfg),
		pipeline.WithProgress(reporter),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	var res *pipeline.Result
	if cmd.Flags().Changed("record") {
		rec := audio.NewRecorder(runner, cfg.Capture.Recorder(cfg.Audio.SampleRate))
		fmt.Fprintf(out, "Recording %s from %s %s...\n", cfg.Capture.Duration, cfg.Capture.Format, cfg.Capture.Device)
		res = orch.TranscribeCapture(ctx, rec)
	} else {
		res = orch.TranscribeFile(ctx, input)
	}

	return report(cmd, reporter, res)
}

// report prints the outcome of a single transcription.
func report(cmd *cobra.Command, reporter *progress.Reporter, res *pipeline.Result) error {
	fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	if !res.Success {
		return errTranscriptionFailed
	}
	if res.MIDIPath != "" {
		reporter.Update("MIDI saved to: %s", res.MIDIPath)
	}
	reporter.Done(res.OutputPath)
	return nil
}
