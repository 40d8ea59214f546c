package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ytgrab/internal/domain/entity"
)

var (
	ErrNotFound = errors.New("job not found")
	ErrExists   = errors.New("job already exists")
)

// JobRepo is the process-lifetime job store. State is not persisted;
// everything is lost on restart by design.
type JobRepo struct {
	mu   sync.RWMutex
	jobs map[string]*entity.Job
}

func NewJobRepo() *JobRepo {
	return &JobRepo{jobs: make(map[string]*entity.Job)}
}

func (r *JobRepo) Create(ctx context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, job.ID)
	}
	stored := *job
	r.jobs[job.ID] = &stored
	return nil
}

// Get returns a copy of the job. Readers tolerate stale reads; the copy
// keeps them from observing a half-applied update.
func (r *JobRepo) Get(ctx context.Context, jobID string) (entity.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return entity.Job{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return *job, nil
}

// SetStatus advances the job status, rejecting transitions that move
// backwards or out of a terminal state.
func (r *JobRepo) SetStatus(ctx context.Context, jobID string, status entity.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if !job.Status.CanAdvanceTo(status) {
		return fmt.Errorf("illegal status transition %s -> %s for job %s", job.Status, status, jobID)
	}
	job.Status = status
	return nil
}

func (r *JobRepo) SetProgress(ctx context.Context, jobID string, percent float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	job.Progress = percent
	return nil
}

func (r *JobRepo) SetTitle(ctx context.Context, jobID, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	job.Title = title
	return nil
}

// Complete marks the job completed and records where its artifacts ended up.
func (r *JobRepo) Complete(ctx context.Context, jobID, videoURL, audioURL, videoPath, audioPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if !job.Status.CanAdvanceTo(entity.StatusCompleted) {
		return fmt.Errorf("illegal status transition %s -> %s for job %s", job.Status, entity.StatusCompleted, jobID)
	}
	job.Status = entity.StatusCompleted
	job.Progress = 100
	job.VideoURL = videoURL
	job.AudioURL = audioURL
	job.VideoPath = videoPath
	job.AudioPath = audioPath
	return nil
}

// Fail marks the job failed with a human-readable message. Failing an
// already terminal job is a no-op.
func (r *JobRepo) Fail(ctx context.Context, jobID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = entity.StatusFailed
	job.Error = message
	return nil
}

func (r *JobRepo) Delete(ctx context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[jobID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	delete(r.jobs, jobID)
	return nil
}

// ExpiredBefore returns ids of terminal jobs created before the cutoff.
// Non-terminal jobs are never reported: a live task still owns them.
func (r *JobRepo) ExpiredBefore(ctx context.Context, cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, job := range r.jobs {
		if job.Status.Terminal() && job.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}
