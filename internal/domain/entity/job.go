package entity

import "time"

type JobStatus string

const (
	StatusPending     JobStatus = "pending"
	StatusDownloading JobStatus = "downloading"
	StatusProcessing  JobStatus = "processing"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
)

// statusRank orders the non-failed statuses along the pipeline.
var statusRank = map[JobStatus]int{
	StatusPending:     0,
	StatusDownloading: 1,
	StatusProcessing:  2,
	StatusCompleted:   3,
}

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanAdvanceTo reports whether a transition from s to next is legal.
// Statuses only move forward along the pipeline order; failed is
// reachable from any non-terminal status.
func (s JobStatus) CanAdvanceTo(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Job tracks one download request from submission to completion.
// Exactly one background task writes a given job; HTTP handlers only read.
type Job struct {
	ID        string    `json:"job_id"`
	URL       string    `json:"url"`
	Status    JobStatus `json:"status"`
	Progress  float64   `json:"progress"`
	Title     string    `json:"title,omitempty"`
	VideoURL  string    `json:"video_url,omitempty"`
	AudioURL  string    `json:"audio_url,omitempty"`
	VideoPath string    `json:"-"`
	AudioPath string    `json:"-"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
