package cron

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestEncodeDecodeJobs(t *testing.T) {
	t.Parallel()
	next := int64(1_700_000_060_000)
	jobs := []Job{
		{
			ID:          "a1",
			Name:        "ping",
			Enabled:     true,
			Schedule:    EverySchedule{EveryMs: 60_000},
			Payload:     Payload{Kind: PayloadAgentTurn, Message: "ping", Deliver: true, Channel: "telegram", To: "42"},
			State:       RunState{NextRunAtMs: &next, LastStatus: StatusOK},
			CreatedAtMs: 1,
			UpdatedAtMs: 2,
		},
		{
			ID:             "b2",
			Name:           "once",
			Schedule:       AtSchedule{AtMs: 1_800_000_000_000},
			Payload:        Payload{Kind: PayloadSystemEvent},
			State:          RunState{LastStatus: StatusError, LastError: "boom"},
			DeleteAfterRun: true,
		},
		{
			ID:       "c3",
			Name:     "cal",
			Enabled:  true,
			Schedule: CronSchedule{Expr: "0 9 * * *", TZ: "Europe/Paris"},
		},
	}

	b, err := EncodeJobs(jobs)
	if err != nil {
		t.Fatalf("EncodeJobs: %v", err)
	}
	for _, field := range []string{`"version": 1`, `"everyMs": 60000`, `"atMs": 1800000000000`, `"expr": "0 9 * * *"`, `"tz": "Europe/Paris"`, `"nextRunAtMs": 1700000060000`, `"deleteAfterRun": true`, `"lastError": "boom"`} {
		if !strings.Contains(string(b), field) {
			t.Fatalf("encoded document lacks %s:\n%s", field, b)
		}
	}

	got, err := DecodeJobs(b)
	if err != nil {
		t.Fatalf("DecodeJobs: %v", err)
	}
	if len(got) != len(jobs) {
		t.Fatalf("decoded %d jobs, want %d", len(got), len(jobs))
	}
	for i := range jobs {
		if got[i].ID != jobs[i].ID || got[i].Schedule != jobs[i].Schedule || got[i].Payload != jobs[i].Payload {
			t.Fatalf("job %d = %+v, want %+v", i, got[i], jobs[i])
		}
	}
	if got[0].State.NextRunAtMs == nil || *got[0].State.NextRunAtMs != next {
		t.Fatalf("nextRunAtMs lost: %+v", got[0].State)
	}
	if got[1].State.NextRunAtMs != nil {
		t.Fatalf("absent nextRunAtMs decoded as %d", *got[1].State.NextRunAtMs)
	}
}

func TestDecodeJobsFailClosed(t *testing.T) {
	t.Parallel()
	valid := func(id string) map[string]any {
		return map[string]any{
			"id":       id,
			"name":     id,
			"enabled":  true,
			"schedule": map[string]any{"kind": "every", "everyMs": 1000},
			"payload":  map[string]any{"kind": "agent_turn", "message": "hi", "deliver": false},
			"state":    map[string]any{},
		}
	}
	tests := []struct {
		name string
		bad  map[string]any
	}{
		{"every without interval", map[string]any{"id": "x", "schedule": map[string]any{"kind": "every"}}},
		{"unknown kind", map[string]any{"id": "x", "schedule": map[string]any{"kind": "hourly"}}},
		{"missing id", map[string]any{"schedule": map[string]any{"kind": "at", "atMs": 5}}},
		{"negative interval", map[string]any{"id": "x", "schedule": map[string]any{"kind": "every", "everyMs": -1}}},
		{"interval overflows", map[string]any{"id": "x", "schedule": map[string]any{"kind": "every", "everyMs": int64(math.MaxInt64)}}},
		{"unknown timezone", map[string]any{"id": "x", "schedule": map[string]any{"kind": "cron", "expr": "0 9 * * *", "tz": "Mars/Olympus"}}},
		{"duplicate id", valid("a")},
		{"wrong type", map[string]any{"id": "x", "enabled": "yes", "schedule": map[string]any{"kind": "at", "atMs": 5}}},
	}
	for _, tt := range tests {
		doc := map[string]any{"version": 1, "jobs": []any{valid("a"), tt.bad, valid("b"), valid("c")}}
		b, _ := json.Marshal(doc)
		if jobs, err := DecodeJobs(b); err == nil {
			t.Fatalf("%s: expected error, got %d jobs", tt.name, len(jobs))
		}
	}

	if _, err := DecodeJobs([]byte(`{"version":1,"jobs":[`)); err == nil {
		t.Fatal("truncated document should fail")
	}
	if _, err := DecodeJobs([]byte(`{"version":2,"jobs":[]}`)); err == nil {
		t.Fatal("future version should fail")
	}
}
