package cron

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
	"unicode/utf8"

	"cronbot/internal/eventbus"
	"cronbot/internal/storage"
	logx "cronbot/pkg/logx"
)

// dispatch runs one job through the executor and reconciles its state.
// It reports false when the job no longer exists, or when requireEnabled is
// set and the job was disabled since it was picked.
func (s *Service) dispatch(ctx context.Context, id string, requireEnabled bool) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 || (requireEnabled && !s.jobs[i].Enabled) {
		s.mu.Unlock()
		return false
	}
	job := s.jobs[i]
	s.mu.Unlock()

	exec := s.executor()
	start := s.now()
	log := s.log.With(logx.Job(job.ID, job.Name))
	log.Debug("job.started")
	s.publish(EventJobStarted, start, JobEvent{ID: job.ID, Name: job.Name, Started: start})

	status, errMsg := s.execute(ctx, exec, job, log)

	end := s.now()
	dur := end.Sub(start)
	endMs := end.UnixMilli()

	s.mu.Lock()
	if i := s.indexLocked(id); i >= 0 {
		j := &s.jobs[i]
		j.State.LastRunAtMs = int64Ptr(start.UnixMilli())
		j.State.LastStatus = status
		j.State.LastError = errMsg
		j.UpdatedAtMs = max(endMs, j.CreatedAtMs)

		_, oneShot := j.Schedule.(AtSchedule)
		switch {
		case oneShot && j.DeleteAfterRun:
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
		case oneShot:
			j.Enabled = false
			j.State.NextRunAtMs = nil
		case j.Enabled:
			j.State.NextRunAtMs = nextRunPtr(j.Schedule, endMs)
		default:
			// Disabled while in flight.
			j.State.NextRunAtMs = nil
		}
	}
	s.mu.Unlock()

	item := HistoryItem{JobID: job.ID, Name: job.Name, Started: start, Duration: dur, Status: status, Error: errMsg}
	s.record(item)
	s.appendRun(ctx, item)

	ev := JobEvent{ID: job.ID, Name: job.Name, Started: start, Duration: dur, Status: status, Error: errMsg}
	switch status {
	case StatusError:
		log.Warn("job.failed", logx.String("err", errMsg), logx.Duration("dur", dur))
		s.publish(EventJobFailed, end, ev)
	default:
		if dur >= 750*time.Millisecond {
			log.Info("job.completed", logx.String("status", string(status)), logx.Duration("dur", dur))
		} else {
			log.Debug("job.completed", logx.String("status", string(status)), logx.Duration("dur", dur))
		}
		s.publish(EventJobFinished, end, ev)
	}
	return true
}

// execute calls the executor outside the registry lock. The call is detached
// from ctx cancellation: the executor owns its own timeout.
func (s *Service) execute(ctx context.Context, exec Executor, job Job, log logx.Logger) (status RunStatus, errMsg string) {
	if exec == nil {
		return StatusSkipped, ""
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("job.panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			status, errMsg = StatusError, fmt.Sprintf("panic: %v", r)
		}
	}()
	if err := exec.Execute(context.WithoutCancel(ctx), job); err != nil {
		return StatusError, err.Error()
	}
	return StatusOK, ""
}

func (s *Service) record(item HistoryItem) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

func (s *Service) appendRun(ctx context.Context, item HistoryItem) {
	rec := storage.RunRecord{
		JobID:      item.JobID,
		JobName:    item.Name,
		StartedMs:  item.Started.UnixMilli(),
		DurationMs: item.Duration.Milliseconds(),
		Status:     string(item.Status),
		Error:      truncateError(item.Error),
	}
	if err := s.store.AppendRun(context.WithoutCancel(ctx), rec); err != nil {
		s.log.Debug("run history append failed", logx.Job(item.JobID, item.Name), logx.Err(err))
	}
}

func (s *Service) publish(typ string, at time.Time, ev JobEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: at, Data: ev})
}

func (s *Service) indexLocked(id string) int {
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			return i
		}
	}
	return -1
}

// maxRunErrorLen caps the error text kept in durable run history. The
// in-memory history keeps the full message.
const maxRunErrorLen = 4096

func truncateError(msg string) string {
	if len(msg) <= maxRunErrorLen {
		return msg
	}
	cut := maxRunErrorLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "…"
}
