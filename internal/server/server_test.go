package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/VirginiaXiao148/Pitch-Detector/internal/audio"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/observe"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/pipeline"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/pitch"
)

type stubTracker struct{ freqs []float64 }

func (s *stubTracker) Track(ctx context.Context, samples []float64, sampleRate int) ([]pitch.Candidate, error) {
	out := make([]pitch.Candidate, len(s.freqs))
	for i, f := range s.freqs {
		out[i] = pitch.Candidate{Frequency: f, Frame: i}
	}
	return out, nil
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func newTestServer(t *testing.T, freqs ...float64) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := testMetrics(t)

	cfg := pipeline.DefaultConfig()
	cfg.OutputPath = filepath.Join(t.TempDir(), "unused.xml")
	orch, err := pipeline.NewOrchestrator(cfg,
		pipeline.WithTracker(&stubTracker{freqs: freqs}),
		pipeline.WithMetrics(metrics),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		t.Fatal(err)
	}

	s, err := New(Config{
		WorkDir:        t.TempDir(),
		MaxUploadBytes: 10 << 20,
		MetricsPath:    "/metrics",
	}, orch, logger, metrics)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Jobs().Close)
	return s
}

func wavBytes(t *testing.T) []byte {
	t.Helper()
	const rate = 22050
	samples := make([]float64, rate/2)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/rate)
	}
	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := audio.WriteWAV(path, audio.NewMono(rate, samples), 16); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func multipartBody(t *testing.T, fields map[string]string, filename string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if file != nil {
		fw, err := mw.CreateFormFile("audio", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(file)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIndex(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`name="audio"`, `name="url"`, "Maximum size 10MB"} {
		if !strings.Contains(body, want) {
			t.Errorf("index page missing %q", want)
		}
	}
}

func TestStatic(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/static/recorder.js", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "encodeWAV") {
		t.Error("unexpected recorder script")
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["status"] != "ok" {
		t.Errorf("status field = %v", got["status"])
	}
}

func TestTranscribeWithoutAudio(t *testing.T) {
	s := newTestServer(t, 440)

	t.Run("empty multipart", func(t *testing.T) {
		body, ct := multipartBody(t, nil, "", nil)
		req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
		req.Header.Set("Content-Type", ct)
		rec := do(t, s.Handler(), req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "No audio provided.") {
			t.Errorf("body missing no-input message:\n%s", rec.Body.String())
		}
	})

	t.Run("no body", func(t *testing.T) {
		rec := do(t, s.Handler(), httptest.NewRequest(http.MethodPost, "/transcribe", nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "No audio provided.") {
			t.Errorf("body missing no-input message")
		}
	})

	if n := s.Jobs().Len(); n != 0 {
		t.Errorf("jobs = %d, want 0", n)
	}
}

var jobLink = regexp.MustCompile(`/download/([0-9a-f-]{36})`)

func TestTranscribeUpload(t *testing.T) {
	s := newTestServer(t, 440, 523.25)

	body, ct := multipartBody(t, nil, "melody.wav", wavBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, s.Handler(), req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d\n%s", rec.Code, rec.Body.String())
	}

	page := rec.Body.String()
	for _, want := range []string{
		"Transcription completed. 2 pitches detected.",
		"melody.wav",
		"440.0 Hz",
		"C5",
		"score-partwise",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("result page missing %q", want)
		}
	}

	m := jobLink.FindStringSubmatch(page)
	if m == nil {
		t.Fatal("no download link on result page")
	}
	id := m[1]

	rec = do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/download/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.recordare.musicxml+xml" {
		t.Errorf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "melody.musicxml") {
		t.Errorf("content disposition = %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "<score-partwise") {
		t.Error("download is not MusicXML")
	}

	rec = do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/download/"+id+"/midi", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("midi status = %d", rec.Code)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("MThd")) {
		t.Error("download is not a MIDI file")
	}

	rec = do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/result/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("result status = %d", rec.Code)
	}

	if n := s.Jobs().Len(); n != 1 {
		t.Errorf("jobs = %d, want 1", n)
	}
}

func TestTranscribeNoPitches(t *testing.T) {
	s := newTestServer(t, 100) // below the melody band

	body, ct := multipartBody(t, nil, "low.wav", wavBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, s.Handler(), req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No pitches detected in the audio.") {
		t.Error("missing no-pitches message")
	}
	if jobLink.MatchString(rec.Body.String()) {
		t.Error("no-pitches result should not offer downloads")
	}
	if n := s.Jobs().Len(); n != 0 {
		t.Errorf("jobs = %d, want 0", n)
	}
}

func TestTranscribeCorruptUpload(t *testing.T) {
	s := newTestServer(t, 440)

	body, ct := multipartBody(t, nil, "broken.wav", []byte("RIFF\x00\x00\x00\x00WAVEgarbage"))
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, s.Handler(), req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "An error occurred:") {
		t.Error("missing failure message")
	}
}

func TestTranscribeInvalidURL(t *testing.T) {
	s := newTestServer(t, 440)

	body, ct := multipartBody(t, map[string]string{"url": "https://example.com/song"}, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, s.Handler(), req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid YouTube URL") {
		t.Error("missing URL error")
	}
}

func TestUnknownJob(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{
		"/result/does-not-exist",
		"/download/does-not-exist",
		"/download/does-not-exist/midi",
	} {
		rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestJobManagerSweep(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewJobManager(t.TempDir(), time.Minute, testMetrics(t), logger)

	job, err := m.Create("clip.wav")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(job.Workspace.Dir); err != nil {
		t.Fatalf("workspace missing: %v", err)
	}

	if n := m.Sweep(time.Now()); n != 0 {
		t.Errorf("fresh sweep removed %d jobs", n)
	}
	if n := m.Sweep(time.Now().Add(2 * time.Minute)); n != 1 {
		t.Errorf("late sweep removed %d jobs, want 1", n)
	}
	if _, ok := m.Get(job.ID); ok {
		t.Error("job still registered after sweep")
	}
	if _, err := os.Stat(job.Workspace.Dir); !os.IsNotExist(err) {
		t.Errorf("workspace not removed: %v", err)
	}
}

func TestJobManagerFinishAndRemove(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewJobManager(t.TempDir(), time.Hour, testMetrics(t), logger)

	job, err := m.Create("clip.wav")
	if err != nil {
		t.Fatal(err)
	}
	m.Finish(job.ID, &pipeline.Result{Success: true})

	got, ok := m.Get(job.ID)
	if !ok || got.Result == nil || !got.Result.Success {
		t.Fatalf("Get = %+v, %v", got, ok)
	}

	m.Remove(job.ID)
	if m.Len() != 0 {
		t.Errorf("Len = %d after Remove", m.Len())
	}
	m.Remove(job.ID) // second remove is a no-op
}

func TestDownloadName(t *testing.T) {
	tests := []struct {
		in, ext, want string
	}{
		{"melody.wav", ".musicxml", "melody.musicxml"},
		{"dir/take 2.mp3", ".mid", "take 2.mid"},
		{"", ".mid", "transcription.mid"},
	}
	for _, tt := range tests {
		if got := downloadName(tt.in, tt.ext); got != tt.want {
			t.Errorf("downloadName(%q, %q) = %q, want %q", tt.in, tt.ext, got, tt.want)
		}
	}
}
