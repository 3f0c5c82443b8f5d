package cron

import (
	"context"
	"time"
)

// RunStatus is the outcome of a job's most recent run.
type RunStatus string

const (
	StatusNone    RunStatus = ""
	StatusOK      RunStatus = "ok"
	StatusError   RunStatus = "error"
	StatusSkipped RunStatus = "skipped"
)

const (
	PayloadAgentTurn   = "agent_turn"
	PayloadSystemEvent = "system_event"
)

// Payload is handed to the executor untouched.
type Payload struct {
	Kind    string
	Message string
	Deliver bool
	Channel string
	To      string
}

// RunState is the scheduler-owned part of a job. Nil pointers mean "absent".
type RunState struct {
	NextRunAtMs *int64
	LastRunAtMs *int64
	LastStatus  RunStatus
	LastError   string
}

type Job struct {
	ID             string
	Name           string
	Enabled        bool
	Schedule       Schedule
	Payload        Payload
	State          RunState
	CreatedAtMs    int64
	UpdatedAtMs    int64
	DeleteAfterRun bool
}

// NextRun returns the job's next run time, if any.
func (j Job) NextRun() (time.Time, bool) {
	if j.State.NextRunAtMs == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*j.State.NextRunAtMs), true
}

// AddRequest describes a job to create.
type AddRequest struct {
	Name           string
	Schedule       Schedule
	Payload        Payload
	DeleteAfterRun bool
}

// Status is a point-in-time view of the service.
type Status struct {
	Running      bool
	JobCount     int
	NextWakeAtMs *int64
}

// HistoryItem records one dispatch.
type HistoryItem struct {
	JobID    string
	Name     string
	Started  time.Time
	Duration time.Duration
	Status   RunStatus
	Error    string
}

// Executor performs the real work of a due job.
// The scheduler never cancels an in-flight call; implementations own their timeouts.
type Executor interface {
	Execute(ctx context.Context, job Job) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, job Job) error

func (f ExecutorFunc) Execute(ctx context.Context, job Job) error { return f(ctx, job) }

// Config holds the hot-reloadable knobs of the Service.
type Config struct {
	// IdleInterval bounds the loop's sleep when no job has a next run. Default 60s.
	IdleInterval time.Duration
	// HistorySize caps the in-memory run history. Default 200.
	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.IdleInterval <= 0 {
		c.IdleInterval = 60 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}

func int64Ptr(v int64) *int64 { return &v }
