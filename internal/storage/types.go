package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Load when no document has been saved yet.
	ErrNotFound = errors.New("storage: document not found")
	ErrClosed   = errors.New("storage: closed")
)

// Config configures storage.
//
// Driver values: "file" (default), "sqlite", "memory".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one line of run history. Keep it compact and schema-stable.
type RunRecord struct {
	JobID      string `json:"jobId"`
	JobName    string `json:"jobName"`
	StartedMs  int64  `json:"startedAtMs"`
	DurationMs int64  `json:"durationMs"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// Store is the persistence API used by the scheduler.
type Store interface {
	// Load returns the last saved document or ErrNotFound.
	Load(ctx context.Context) ([]byte, error)
	// Save replaces the document.
	Save(ctx context.Context, doc []byte) error
	// AppendRun appends one run record to the history trail.
	AppendRun(ctx context.Context, r RunRecord) error
	// Runs returns up to limit most recent run records for jobID (all jobs when empty), newest first.
	Runs(ctx context.Context, jobID string, limit int) ([]RunRecord, error)
	Close() error
}
