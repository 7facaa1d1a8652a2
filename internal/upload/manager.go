package upload

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/filedrop/backend/internal/admission"
	"github.com/filedrop/backend/internal/log"
	"github.com/filedrop/backend/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status represents the upload processing status.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
	StatusAborted    Status = "aborted"
)

// Finished reports whether the job reached a terminal status.
func (s Status) Finished() bool {
	return s == StatusComplete || s == StatusError || s == StatusAborted
}

// Job tracks one upload request sent on behalf of a drop session.
type Job struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"sessionId,omitempty"`
	URL         string     `json:"url"`
	FileCount   int        `json:"fileCount"`
	Bytes       int64      `json:"bytes"`
	Status      Status     `json:"status"`
	Progress    float64    `json:"progress"`
	Uploaded    int        `json:"uploaded"`
	Rejected    int        `json:"rejected"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Manager records every upload that passes through it as a Job. It
// implements admission.Transport by delegating to the wrapped transport.
type Manager struct {
	jobs      map[string]*Job
	latest    map[string]string
	mu        sync.RWMutex
	transport admission.Transport
	logger    zerolog.Logger
}

// NewManager creates a manager sending uploads through transport.
func NewManager(transport admission.Transport) *Manager {
	return &Manager{
		jobs:      make(map[string]*Job),
		latest:    make(map[string]string),
		transport: transport,
		logger:    log.WithComponent("upload"),
	}
}

// Upload starts a job for req and sends it through the wrapped transport.
func (m *Manager) Upload(ctx context.Context, req *admission.Request) (*admission.Response, error) {
	job := m.startJob(req)
	started := time.Now()
	ctx = log.ContextWithSessionID(ctx, req.SessionID)

	tracked := *req
	tracked.Progress = func(p float64) {
		m.updateProgress(job, p)
		req.Progress(p)
	}

	resp, err := m.transport.Upload(ctx, &tracked)

	var bytes int64
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil):
		m.finishJob(job, StatusAborted, nil, "aborted")
	case err != nil:
		m.finishJob(job, StatusError, nil, err.Error())
	default:
		m.finishJob(job, StatusComplete, resp, "")
		if req.Size != admission.Unbounded {
			bytes = req.Size
		}
	}

	snap, _ := m.GetJob(job.ID)
	metrics.RecordUpload(string(snap.Status), bytes, time.Since(started).Seconds())
	return resp, err
}

func (m *Manager) startJob(req *admission.Request) *Job {
	job := &Job{
		ID:        uuid.New().String(),
		SessionID: req.SessionID,
		URL:       req.URL,
		FileCount: len(req.Files),
		Bytes:     req.Size,
		Status:    StatusProcessing,
		CreatedAt: time.Now(),
	}
	if job.Bytes == admission.Unbounded {
		job.Bytes = -1
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	if req.SessionID != "" {
		m.latest[req.SessionID] = job.ID
	}
	m.mu.Unlock()

	m.logger.Info().
		Str("job_id", job.ID).
		Str("session_id", job.SessionID).
		Int("files", job.FileCount).
		Msg("upload job started")
	return job
}

// GetJob returns a copy of the job with the given ID.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// LatestJob returns a copy of the most recent job of a session.
func (m *Manager) LatestJob(sessionID string) (Job, bool) {
	m.mu.RLock()
	id, ok := m.latest[sessionID]
	m.mu.RUnlock()
	if !ok {
		return Job{}, false
	}
	return m.GetJob(id)
}

// updateProgress updates job progress (thread-safe).
func (m *Manager) updateProgress(job *Job, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.Status == StatusProcessing {
		job.Progress = max(0, min(100, progress))
	}
}

// finishJob moves the job to a terminal status (thread-safe).
func (m *Manager) finishJob(job *Job, status Status, resp *admission.Response, errMsg string) {
	m.mu.Lock()
	job.Status = status
	job.Error = errMsg
	if resp != nil {
		job.Uploaded = len(resp.Files)
		job.Rejected = len(resp.Rejected)
	}
	if status == StatusComplete {
		job.Progress = 100
	}
	now := time.Now()
	job.CompletedAt = &now
	m.mu.Unlock()

	ev := m.logger.Info()
	if status == StatusError {
		ev = m.logger.Warn().Str("error", errMsg)
	}
	ev.Str("job_id", job.ID).Str("status", string(status)).Msg("upload job finished")
}

// ForgetSession drops the latest-job pointer of a closed session.
func (m *Manager) ForgetSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.latest, sessionID)
}

// CleanupOldJobs removes finished jobs older than the specified duration.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Status.Finished() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			if m.latest[job.SessionID] == id {
				delete(m.latest, job.SessionID)
			}
			removed++
		}
	}
	return removed
}
