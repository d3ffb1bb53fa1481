// Package jobs tracks asynchronous multi-file ingestion batches for status
// polling. The single-file CLI in cmd never starts a batch, so the tracker
// has no caller there; it backs the batch upload contract for embedding
// callers that do.
package jobs

import (
	"fmt"
	"sync"

	"course-rag/internal/helper"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job tracks one asynchronous multi-file ingestion batch. State lives only
// in process memory and is lost on restart.
type Job struct {
	ID             string `json:"jobId"`
	Status         Status `json:"status"`
	Progress       int    `json:"progress"`
	TotalFiles     int    `json:"totalFiles"`
	ProcessedFiles int    `json:"processedFiles"`
	ChunksAdded    int    `json:"chunksAdded"`
	Stage          string `json:"stage"`
	Error          string `json:"error,omitempty"`
}

// Tracker holds in-flight ingest jobs for status polling.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*Job)}
}

func (t *Tracker) Create(totalFiles int) (Job, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return Job{}, err
	}
	job := &Job{ID: id, Status: StatusPending, TotalFiles: totalFiles, Stage: "queued"}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[id] = job
	return *job, nil
}

// Advance records one processed file and its chunk count.
func (t *Tracker) Advance(id, stage string, chunksAdded int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return fmt.Errorf("jobs: unknown job %s", id)
	}
	job.Status = StatusProcessing
	job.Stage = stage
	job.ProcessedFiles++
	job.ChunksAdded += chunksAdded
	if job.TotalFiles > 0 {
		job.Progress = job.ProcessedFiles * 100 / job.TotalFiles
	}
	return nil
}

func (t *Tracker) Complete(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return fmt.Errorf("jobs: unknown job %s", id)
	}
	job.Status = StatusCompleted
	job.Stage = "done"
	job.Progress = 100
	return nil
}

func (t *Tracker) Fail(id string, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return fmt.Errorf("jobs: unknown job %s", id)
	}
	job.Status = StatusFailed
	job.Error = cause.Error()
	return nil
}

// Get returns a copy so callers can't mutate tracker state.
func (t *Tracker) Get(id string) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}
