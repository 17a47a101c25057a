package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/VirginiaXiao148/Pitch-Detector/internal/config"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/pipeline"
)

type batchOptions struct {
	outDir string
	jobs   int
	midi   bool
}

func newBatchCmd(global *globalOptions) *cobra.Command {
	opts := &batchOptions{}

	cmd := &cobra.Command{
		Use:   "batch <files...>",
		Short: "Transcribe several files concurrently",
		Long: `Transcribe every given file into <out-dir>/<name>.musicxml. Files run
in parallel, each with its own output path.

Example:
  pitch-detector batch --jobs 4 --out-dir scores takes/*.wav`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, global, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.outDir, "out-dir", "d", ".", "Directory for the generated scores")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", runtime.NumCPU(), "Maximum concurrent transcriptions")
	cmd.Flags().BoolVar(&opts.midi, "midi", false, "Also write <name>.mid next to each score")
	return cmd
}

// batchOutputs maps every input to its score path and rejects inputs that
// would overwrite each other.
func batchOutputs(outDir string, inputs []string) ([]string, error) {
	seen := make(map[string]string, len(inputs))
	outputs := make([]string, len(inputs))
	for i, in := range inputs {
		base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		out := filepath.Join(outDir, base+".musicxml")
		if prev, ok := seen[out]; ok {
			return nil, fmt.Errorf("%s and %s would both write %s", prev, in, out)
		}
		seen[out] = in
		outputs[i] = out
	}
	return outputs, nil
}

func runBatch(cmd *cobra.Command, global *globalOptions, opts *batchOptions, files []string) error {
	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Server.LogLevel)

	outputs, err := batchOutputs(opts.outDir, files)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	pc := pipelineConfig(cfg)
	pc.OutputPath = outputs[0]
	orch, err := pipeline.NewOrchestrator(pc, pipeline.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := make([]*pipeline.Result, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.jobs, 1))
	for i, file := range files {
		g.Go(func() error {
			var midiPath string
			if opts.midi {
				midiPath = strings.TrimSuffix(outputs[i], ".musicxml") + ".mid"
			}
			results[i] = orch.WithOutput(outputs[i], midiPath).TranscribeFile(ctx, file)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for i, res := range results {
		if res.Success {
			fmt.Fprintf(out, "%s: %s -> %s\n", files[i], res.Message, res.OutputPath)
			continue
		}
		failed++
		fmt.Fprintf(out, "%s: %s\n", files[i], res.Message)
	}
	fmt.Fprintf(out, "%d of %d files transcribed\n", len(files)-failed, len(files))

	if failed > 0 {
		return errTranscriptionFailed
	}
	return nil
}
