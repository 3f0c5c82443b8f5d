package cron

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"cronbot/internal/storage"
	logx "cronbot/pkg/logx"
)

// List returns jobs ordered by next run; jobs without one sort last and ties
// keep insertion order. Disabled jobs are included only when asked.
func (s *Service) List(ctx context.Context, includeDisabled bool) []Job {
	s.ensureLoaded(ctx)
	s.mu.Lock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if includeDisabled || j.Enabled {
			out = append(out, j)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(a, b int) bool {
		return nextOrMax(out[a]) < nextOrMax(out[b])
	})
	return out
}

func nextOrMax(j Job) int64 {
	if j.State.NextRunAtMs == nil {
		return math.MaxInt64
	}
	return *j.State.NextRunAtMs
}

// Get returns a job by id.
func (s *Service) Get(ctx context.Context, id string) (Job, bool) {
	s.ensureLoaded(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.jobs[i], true
	}
	return Job{}, false
}

// Add creates an enabled job, computes its first run and persists it.
func (s *Service) Add(ctx context.Context, req AddRequest) (Job, error) {
	if err := validateSchedule(req.Schedule); err != nil {
		return Job{}, err
	}
	s.ensureLoaded(ctx)

	nowMs := s.now().UnixMilli()
	payload := req.Payload
	if strings.TrimSpace(payload.Kind) == "" {
		payload.Kind = PayloadAgentTurn
	}
	job := Job{
		Name:           strings.TrimSpace(req.Name),
		Enabled:        true,
		Schedule:       req.Schedule,
		Payload:        payload,
		State:          RunState{NextRunAtMs: nextRunPtr(req.Schedule, nowMs)},
		CreatedAtMs:    nowMs,
		UpdatedAtMs:    nowMs,
		DeleteAfterRun: req.DeleteAfterRun,
	}

	s.mu.Lock()
	job.ID = s.uniqueIDLocked()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()

	s.persist(ctx)
	s.signal()
	s.log.Info("job added",
		logx.Job(job.ID, job.Name),
		logx.String("schedule", job.Schedule.String()),
	)
	return job, nil
}

func (s *Service) uniqueIDLocked() string {
	for attempt := 0; attempt < 16; attempt++ {
		id := s.newID()
		if id != "" && s.indexLocked(id) < 0 {
			return id
		}
	}
	// Short ids keep colliding; fall back to a full one.
	for {
		id := uuid.NewString()
		if s.indexLocked(id) < 0 {
			return id
		}
	}
}

// Remove deletes a job. It persists only when something was removed.
func (s *Service) Remove(ctx context.Context, id string) bool {
	s.ensureLoaded(ctx)
	s.mu.Lock()
	i := s.indexLocked(id)
	if i >= 0 {
		s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
	}
	s.mu.Unlock()
	if i < 0 {
		return false
	}
	s.persist(ctx)
	s.signal()
	s.log.Info("job removed", logx.Job(id, ""))
	return true
}

// Enable flips a job's enabled flag, recomputing or clearing its next run.
func (s *Service) Enable(ctx context.Context, id string, enabled bool) (Job, bool) {
	s.ensureLoaded(ctx)
	nowMs := s.now().UnixMilli()
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return Job{}, false
	}
	j := &s.jobs[i]
	j.Enabled = enabled
	j.UpdatedAtMs = max(nowMs, j.CreatedAtMs)
	if enabled {
		j.State.NextRunAtMs = nextRunPtr(j.Schedule, nowMs)
	} else {
		j.State.NextRunAtMs = nil
	}
	out := *j
	s.mu.Unlock()

	s.persist(ctx)
	s.signal()
	s.log.Info("job updated", logx.Job(id, ""), logx.Bool("enabled", enabled))
	return out, true
}

// Run dispatches a job immediately when it exists and is enabled (or force is
// set). It blocks until the executor returns and reports whether it ran.
func (s *Service) Run(ctx context.Context, id string, force bool) bool {
	s.ensureLoaded(ctx)
	s.mu.Lock()
	i := s.indexLocked(id)
	ok := i >= 0 && (force || s.jobs[i].Enabled)
	s.mu.Unlock()
	if !ok {
		return false
	}
	ran := s.dispatch(ctx, id, !force)
	if ran {
		s.persist(ctx)
		s.signal()
	}
	return ran
}

// Status reports whether the loop runs, the job count and the next wake time.
func (s *Service) Status() Status {
	s.ensureLoaded(context.Background())
	running := s.Running()
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Running: running, JobCount: len(s.jobs)}
	if next, ok := s.nextWakeLocked(); ok {
		st.NextWakeAtMs = int64Ptr(next)
	}
	return st
}

// History returns the in-memory run history, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	out := make([]HistoryItem, len(s.history))
	copy(out, s.history)
	return out
}

// Runs reads the durable run trail, newest first.
func (s *Service) Runs(ctx context.Context, jobID string, limit int) ([]storage.RunRecord, error) {
	recs, err := s.store.Runs(ctx, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("cron runs: %w", err)
	}
	return recs, nil
}
