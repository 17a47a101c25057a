package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/VirginiaXiao148/Pitch-Detector/internal/audio"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/exec"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/observe"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/pipeline"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Config holds server configuration
type Config struct {
	ListenAddr     string
	MaxUploadBytes int64
	JobTTL         time.Duration
	WorkDir        string // root for job workspaces, "" for the temp dir
	MetricsPath    string // "" disables the Prometheus endpoint
}

// Server is the HTTP server
type Server struct {
	config    Config
	router    *chi.Mux
	templates *template.Template
	logger    *slog.Logger
	jobs      *JobManager
	pipeline  *pipeline.Orchestrator
	youtube   *audio.YouTubeDownloader
	metrics   *observe.Metrics
}

// New creates a new server. Every request transcribes with a copy of orch
// that writes into the job's own workspace.
func New(cfg Config, orch *pipeline.Orchestrator, logger *slog.Logger, metrics *observe.Metrics) (*Server, error) {
	if orch == nil {
		return nil, errors.New("server: orchestrator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = audio.MaxFileSize
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	logger = logger.With("component", "server")
	s := &Server{
		config:    cfg,
		router:    chi.NewRouter(),
		templates: tmpl,
		logger:    logger,
		jobs:      NewJobManager(cfg.WorkDir, cfg.JobTTL, metrics, logger),
		pipeline:  orch,
		youtube:   audio.NewYouTubeDownloader(exec.NewRunner()),
		metrics:   metrics,
	}

	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(observe.Middleware(s.metrics, s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)

	r.Post("/transcribe", s.handleTranscribe)
	r.Get("/result/{id}", s.handleResult)
	r.Get("/download/{id}", s.handleDownloadScore)
	r.Get("/download/{id}/midi", s.handleDownloadMIDI)

	if s.config.MetricsPath != "" {
		r.Handle(s.config.MetricsPath, observe.Handler())
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Jobs exposes the job manager.
func (s *Server) Jobs() *JobManager {
	return s.jobs
}

// Run serves until ctx is cancelled, then shuts down gracefully and removes
// every job workspace.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 5 * time.Minute, // long transcriptions
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go s.jobs.Run(sweepCtx, time.Minute)

	done := make(chan struct{})
	go func() {
		<-ctx.Done()

		s.logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown error", slog.Any("error", err))
		}
		close(done)
	}()

	s.logger.Info("server starting", slog.String("addr", s.config.ListenAddr))
	fmt.Printf("\n  Pitch detector web interface running at: http://localhost%s\n\n", s.config.ListenAddr)

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-done
	s.jobs.Close()
	return nil
}
