package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/VirginiaXiao148/Pitch-Detector/internal/config"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/observe"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/pipeline"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/server"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web interface",
		Long: `Start the web interface for uploading or recording clips and
downloading the generated sheet music.

Example:
  pitch-detector serve --listen :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Server.ListenAddr = listen
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", ":8080", "Address to listen on")
	return cmd
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	logger := newLogger(cmd.ErrOrStderr(), cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsPath string
	if cfg.Metrics.Enabled {
		shutdown, err := observe.InitProvider(version)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(cmd.Context()); err != nil {
				logger.Warn("telemetry shutdown", "error", err)
			}
		}()
		metricsPath = cfg.Metrics.Path
	}
	metrics := observe.DefaultMetrics()

	orch, err := pipeline.NewOrchestrator(pipelineConfig(cfg),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		ListenAddr:     cfg.Server.ListenAddr,
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
		JobTTL:         cfg.Server.JobTTL,
		WorkDir:        cfg.Server.WorkDir,
		MetricsPath:    metricsPath,
	}, orch, logger, metrics)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	return srv.Run(ctx)
}
