package cron

import "time"

// Event types published on the bus.
const (
	EventJobStarted  = "cron.job.started"
	EventJobFinished = "cron.job.finished"
	EventJobFailed   = "cron.job.failed"
	EventStoreError  = "cron.store.error"
)

// JobEvent is the Data of cron.job.* events.
type JobEvent struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration,omitempty"`
	Status   RunStatus     `json:"status,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// StoreEvent is the Data of cron.store.error events.
type StoreEvent struct {
	Op    string `json:"op"`
	Error string `json:"error"`
}
