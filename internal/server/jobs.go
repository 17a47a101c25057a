package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/VirginiaXiao148/Pitch-Detector/internal/observe"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/pipeline"
	"github.com/VirginiaXiao148/Pitch-Detector/internal/workspace"
)

// Job is one uploaded clip and its transcription.
type Job struct {
	ID        string
	Filename  string
	Workspace *workspace.Workspace
	Result    *pipeline.Result
	CreatedAt time.Time
}

// JobManager tracks jobs until their workspaces expire.
type JobManager struct {
	jobs    map[string]*Job
	mu      sync.RWMutex
	root    string
	ttl     time.Duration
	metrics *observe.Metrics
	logger  *slog.Logger
}

// NewJobManager creates a new job manager
func NewJobManager(root string, ttl time.Duration, metrics *observe.Metrics, logger *slog.Logger) *JobManager {
	return &JobManager{
		jobs:    make(map[string]*Job),
		root:    root,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

// Create registers a new job with its own workspace.
func (m *JobManager) Create(filename string) (*Job, error) {
	ws, err := workspace.Create(m.root)
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:        uuid.NewString(),
		Filename:  filename,
		Workspace: ws,
		CreatedAt: ws.CreatedAt,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.metrics.ActiveJobs.Add(context.Background(), 1)
	return job, nil
}

// Finish stores the transcription result of a job.
func (m *JobManager) Finish(id string, res *pipeline.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		job.Result = res
	}
}

// Get returns a snapshot of the job with the given ID.
func (m *JobManager) Get(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Len returns the number of live jobs.
func (m *JobManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

// Remove deletes a job and its workspace.
func (m *JobManager) Remove(id string) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	delete(m.jobs, id)
	m.mu.Unlock()

	if ok {
		m.cleanup(job)
	}
}

// Sweep removes every job older than the TTL and returns how many went.
func (m *JobManager) Sweep(now time.Time) int {
	var expired []*Job
	m.mu.Lock()
	for id, job := range m.jobs {
		if job.Workspace.Expired(m.ttl, now) {
			expired = append(expired, job)
			delete(m.jobs, id)
		}
	}
	m.mu.Unlock()

	for _, job := range expired {
		m.cleanup(job)
	}
	return len(expired)
}

// Run sweeps expired jobs every interval until ctx is done.
func (m *JobManager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Sweep(now); n > 0 {
				m.logger.Debug("expired jobs removed", "count", n)
			}
		}
	}
}

// Close removes every job.
func (m *JobManager) Close() {
	m.mu.Lock()
	jobs := m.jobs
	m.jobs = make(map[string]*Job)
	m.mu.Unlock()

	for _, job := range jobs {
		m.cleanup(job)
	}
}

func (m *JobManager) cleanup(job *Job) {
	if err := job.Workspace.Cleanup(); err != nil {
		m.logger.Warn("workspace cleanup failed", "job", job.ID, "error", err)
	}
	m.metrics.ActiveJobs.Add(context.Background(), -1)
}
