package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/VirginiaXiao148/Pitch-Detector/internal/audio"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/pipeline"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/score"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to disk.
const multipartMemory = 32 << 20

var templateFuncs = template.FuncMap{
	"hz": func(f float64) string { return fmt.Sprintf("%.1f Hz", f) },
}

// noteRow is one line of the detected notes table.
type noteRow struct {
	Index     int
	Name      string
	MIDI      int
	Frequency float64
	Length    float64
}

// handleIndex serves the upload and recording page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "index.html", map[string]any{
		"MaxUploadMB": s.config.MaxUploadBytes >> 20,
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"jobs":   s.jobs.Len(),
	})
}

// handleTranscribe accepts an uploaded clip (field "audio") or a YouTube
// link (field "url") and renders the transcription result.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.renderError(w, fmt.Sprintf("File too large. Maximum size is %dMB.", s.config.MaxUploadBytes>>20), http.StatusRequestEntityTooLarge)
			return
		}
		s.renderError(w, "Malformed upload.", http.StatusBadRequest)
		return
	}

	if url := strings.TrimSpace(r.FormValue("url")); url != "" {
		if !audio.IsYouTubeURL(url) {
			s.renderError(w, "Invalid YouTube URL. Please provide a valid youtube.com or youtu.be link.", http.StatusBadRequest)
			return
		}
		s.transcribeYouTube(w, r, url)
		return
	}

	file, header, err := r.FormFile("audio")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		// Absent audio is a normal outcome of the pipeline, not a form error.
		res := s.pipeline.Transcribe(r.Context(), nil)
		s.renderResult(w, nil, res)
		return
	}
	if err != nil {
		s.renderError(w, "Could not read the uploaded file.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	job, err := s.jobs.Create(header.Filename)
	if err != nil {
		s.logger.Error("create job", "error", err)
		s.renderError(w, "Failed to save file.", http.StatusInternalServerError)
		return
	}

	inputPath, err := job.Workspace.SaveUpload(header.Filename, file, s.config.MaxUploadBytes)
	if err != nil {
		s.jobs.Remove(job.ID)
		s.logger.Error("save upload", "job", job.ID, "error", err)
		s.renderError(w, "Failed to save file.", http.StatusInternalServerError)
		return
	}

	s.transcribeJob(w, r, job, inputPath)
}

// transcribeYouTube downloads the audio of url into a new job and
// transcribes it.
func (s *Server) transcribeYouTube(w http.ResponseWriter, r *http.Request, url string) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	title, err := s.youtube.GetVideoTitle(ctx, url)
	cancel()
	if err != nil || title == "" {
		title = "YouTube Video"
	}

	job, err := s.jobs.Create(title)
	if err != nil {
		s.logger.Error("create job", "error", err)
		s.renderError(w, "Failed to create job.", http.StatusInternalServerError)
		return
	}

	dlCtx, dlCancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer dlCancel()
	inputPath, err := s.youtube.Download(dlCtx, url, job.Workspace.Dir)
	if err != nil {
		s.jobs.Remove(job.ID)
		s.logger.Error("youtube download", "url", url, "error", err)
		s.renderError(w, fmt.Sprintf("Download failed: %v", err), http.StatusBadGateway)
		return
	}

	s.transcribeJob(w, r, job, inputPath)
}

func (s *Server) transcribeJob(w http.ResponseWriter, r *http.Request, job *Job, inputPath string) {
	orch := s.pipeline.WithOutput(job.Workspace.MusicXML(), job.Workspace.MIDI())
	res := orch.TranscribeFile(r.Context(), inputPath)

	if !res.Success {
		s.jobs.Remove(job.ID)
		s.renderResult(w, nil, res)
		return
	}

	s.jobs.Finish(job.ID, res)
	snapshot, _ := s.jobs.Get(job.ID)
	s.renderResult(w, &snapshot, res)
}

// handleResult re-renders the result page of a finished job
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(chi.URLParam(r, "id"))
	if !ok || job.Result == nil {
		s.renderError(w, "Job not found.", http.StatusNotFound)
		return
	}
	s.renderResult(w, &job, job.Result)
}

// handleDownloadScore serves the MusicXML file of a job
func (s *Server) handleDownloadScore(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(chi.URLParam(r, "id"))
	if !ok || job.Result == nil || !job.Result.Success {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.serveArtifact(w, r, job.Result.OutputPath, "application/vnd.recordare.musicxml+xml", downloadName(job.Filename, ".musicxml"))
}

// handleDownloadMIDI serves the Standard MIDI File of a job
func (s *Server) handleDownloadMIDI(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(chi.URLParam(r, "id"))
	if !ok || job.Result == nil || job.Result.MIDIPath == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.serveArtifact(w, r, job.Result.MIDIPath, "audio/midi", downloadName(job.Filename, ".mid"))
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, path, contentType, name string) {
	if !fileExists(path) {
		http.Error(w, "File not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

// renderResult renders the status of res. job is nil when nothing was kept.
func (s *Server) renderResult(w http.ResponseWriter, job *Job, res *pipeline.Result) {
	status := http.StatusOK
	switch res.Kind {
	case pipeline.FailureNoInput:
		status = http.StatusBadRequest
	case pipeline.FailureDetection:
		status = http.StatusUnprocessableEntity
	}

	rows := make([]noteRow, len(res.Notes))
	for i, n := range res.Notes {
		rows[i] = noteRow{
			Index:     i + 1,
			Name:      score.NoteName(n.MIDIPitch),
			MIDI:      n.MIDIPitch,
			Frequency: res.Pitches[i],
			Length:    n.QuarterLength,
		}
	}

	data := map[string]any{
		"Success": res.Success,
		"Message": res.Message,
		"Notes":   rows,
		"Content": res.Content,
	}
	if job != nil {
		data["JobID"] = job.ID
		data["Filename"] = job.Filename
		data["HasMIDI"] = res.MIDIPath != ""
	}
	s.render(w, status, "result.html", data)
}

// render renders a template
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("template error", "template", name, "error", err)
	}
}

// renderError renders an error message
func (s *Server) renderError(w http.ResponseWriter, message string, status int) {
	s.render(w, status, "error.html", map[string]any{
		"Error": message,
	})
}

// downloadName turns an uploaded file name into an attachment name with ext.
func downloadName(filename, ext string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "transcription"
	}
	return base + ext
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
