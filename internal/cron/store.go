package cron

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const storeVersion = 1

// The types below are the persisted contract. Field names must not change.

type storeDoc struct {
	Version int       `json:"version"`
	Jobs    []jobWire `json:"jobs"`
}

type jobWire struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Enabled        bool         `json:"enabled"`
	Schedule       scheduleWire `json:"schedule"`
	Payload        payloadWire  `json:"payload"`
	State          stateWire    `json:"state"`
	CreatedAtMs    int64        `json:"createdAtMs"`
	UpdatedAtMs    int64        `json:"updatedAtMs"`
	DeleteAfterRun bool         `json:"deleteAfterRun"`
}

type scheduleWire struct {
	Kind    Kind   `json:"kind"`
	AtMs    *int64 `json:"atMs,omitempty"`
	EveryMs *int64 `json:"everyMs,omitempty"`
	Expr    string `json:"expr,omitempty"`
	TZ      string `json:"tz,omitempty"`
}

type payloadWire struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Deliver bool   `json:"deliver"`
	Channel string `json:"channel,omitempty"`
	To      string `json:"to,omitempty"`
}

type stateWire struct {
	NextRunAtMs *int64    `json:"nextRunAtMs,omitempty"`
	LastRunAtMs *int64    `json:"lastRunAtMs,omitempty"`
	LastStatus  RunStatus `json:"lastStatus,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
}

// EncodeJobs renders jobs as the versioned store document.
func EncodeJobs(jobs []Job) ([]byte, error) {
	doc := storeDoc{Version: storeVersion, Jobs: make([]jobWire, 0, len(jobs))}
	for _, j := range jobs {
		w, err := toWire(j)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", j.ID, err)
		}
		doc.Jobs = append(doc.Jobs, w)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// DecodeJobs parses a store document. It is all-or-nothing: a single invalid
// job fails the whole document.
func DecodeJobs(b []byte) ([]Job, error) {
	var doc storeDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode store: %w", err)
	}
	if doc.Version > storeVersion {
		return nil, fmt.Errorf("decode store: unsupported version %d", doc.Version)
	}
	out := make([]Job, 0, len(doc.Jobs))
	seen := make(map[string]struct{}, len(doc.Jobs))
	for i, w := range doc.Jobs {
		j, err := fromWire(w)
		if err != nil {
			return nil, fmt.Errorf("decode store: jobs[%d]: %w", i, err)
		}
		if _, dup := seen[j.ID]; dup {
			return nil, fmt.Errorf("decode store: jobs[%d]: duplicate id %q", i, j.ID)
		}
		seen[j.ID] = struct{}{}
		out = append(out, j)
	}
	return out, nil
}

func toWire(j Job) (jobWire, error) {
	w := jobWire{
		ID:      j.ID,
		Name:    j.Name,
		Enabled: j.Enabled,
		Payload: payloadWire{
			Kind:    j.Payload.Kind,
			Message: j.Payload.Message,
			Deliver: j.Payload.Deliver,
			Channel: j.Payload.Channel,
			To:      j.Payload.To,
		},
		State: stateWire{
			NextRunAtMs: j.State.NextRunAtMs,
			LastRunAtMs: j.State.LastRunAtMs,
			LastStatus:  j.State.LastStatus,
			LastError:   j.State.LastError,
		},
		CreatedAtMs:    j.CreatedAtMs,
		UpdatedAtMs:    j.UpdatedAtMs,
		DeleteAfterRun: j.DeleteAfterRun,
	}
	switch s := j.Schedule.(type) {
	case AtSchedule:
		w.Schedule = scheduleWire{Kind: KindAt, AtMs: int64Ptr(s.AtMs)}
	case EverySchedule:
		w.Schedule = scheduleWire{Kind: KindEvery, EveryMs: int64Ptr(s.EveryMs)}
	case CronSchedule:
		w.Schedule = scheduleWire{Kind: KindCron, Expr: s.Expr, TZ: s.TZ}
	default:
		return jobWire{}, errors.New("schedule required")
	}
	return w, nil
}

func fromWire(w jobWire) (Job, error) {
	if strings.TrimSpace(w.ID) == "" {
		return Job{}, errors.New("id required")
	}
	var sched Schedule
	switch w.Schedule.Kind {
	case KindAt:
		if w.Schedule.AtMs == nil {
			return Job{}, errors.New("schedule.atMs required for kind at")
		}
		sched = AtSchedule{AtMs: *w.Schedule.AtMs}
	case KindEvery:
		if w.Schedule.EveryMs == nil {
			return Job{}, errors.New("schedule.everyMs required for kind every")
		}
		sched = EverySchedule{EveryMs: *w.Schedule.EveryMs}
	case KindCron:
		sched = CronSchedule{Expr: w.Schedule.Expr, TZ: w.Schedule.TZ}
	default:
		return Job{}, fmt.Errorf("unknown schedule kind %q", w.Schedule.Kind)
	}
	if err := validateSchedule(sched); err != nil {
		return Job{}, err
	}
	switch w.State.LastStatus {
	case StatusNone, StatusOK, StatusError, StatusSkipped:
	default:
		return Job{}, fmt.Errorf("unknown lastStatus %q", w.State.LastStatus)
	}
	return Job{
		ID:       w.ID,
		Name:     w.Name,
		Enabled:  w.Enabled,
		Schedule: sched,
		Payload: Payload{
			Kind:    w.Payload.Kind,
			Message: w.Payload.Message,
			Deliver: w.Payload.Deliver,
			Channel: w.Payload.Channel,
			To:      w.Payload.To,
		},
		State: RunState{
			NextRunAtMs: w.State.NextRunAtMs,
			LastRunAtMs: w.State.LastRunAtMs,
			LastStatus:  w.State.LastStatus,
			LastError:   w.State.LastError,
		},
		CreatedAtMs:    w.CreatedAtMs,
		UpdatedAtMs:    w.UpdatedAtMs,
		DeleteAfterRun: w.DeleteAfterRun,
	}, nil
}
