package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/VirginiaXiao148/Pitch-Detector/internal/config"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/pipeline"
)

var version = "0.1.0"

// errTranscriptionFailed marks a run whose result was already printed; main
// only turns it into the exit code.
var errTranscriptionFailed = errors.New("transcription failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errTranscriptionFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configPath string
	verbose    bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "pitch-detector",
		Short: "Transcribe a monophonic melody into sheet music",
		Long: `Pitch-detector listens to a short monophonic clip, finds the pitch of
every note onset and writes the melody as MusicXML sheet music.

Pipeline: audio → resample → onset/pitch detection → band filter → notes → MusicXML`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newTranscribeCmd(opts),
		newBatchCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// loadConfig reads the configuration file, if any, and applies the shared
// flag overrides.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	switch {
	case opts.logLevel != "":
		cfg.Server.LogLevel = config.LogLevel(opts.logLevel)
	case opts.verbose:
		cfg.Server.LogLevel = config.LogDebug
	}
	return cfg, nil
}

// newLogger builds the process logger. It also becomes slog's default so
// packages that log through slog.Default share the level.
func newLogger(w io.Writer, level config.LogLevel) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.Level()}))
	slog.SetDefault(logger)
	return logger
}

// pipelineConfig maps the file configuration onto the orchestrator's.
func pipelineConfig(cfg *config.Config) pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.SampleRate = cfg.Audio.SampleRate
	pc.ResampleQuality = cfg.Audio.ResampleQuality
	pc.Policy = cfg.Filter.Policy()
	pc.NoteDuration = cfg.Score.NoteDuration
	pc.Title = cfg.Score.Title
	pc.OutputPath = cfg.Score.OutputPath
	pc.MIDIPath = cfg.Score.MIDIOutput
	pc.Tempo = cfg.Score.Tempo
	return pc
}
