package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func run(t *testing.T, cfgPath string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("cronbot %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

// zerolog globals are touched by every invocation; keep these serial.
func TestJobsLifecycle(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	body := `{"storage": {"driver": "file", "path": "` + filepath.ToSlash(filepath.Join(dir, "jobs.json")) + `"}}`
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	out := run(t, cfgPath, "jobs", "add", "--name", "report", "--schedule", "0 9 * * 1", "--tz", "UTC", "--message", "weekly")
	m := regexp.MustCompile(`added (\S+) `).FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("unexpected add output %q", out)
	}
	id := m[1]

	if out := run(t, cfgPath, "jobs", "list"); !strings.Contains(out, id) || !strings.Contains(out, "report") {
		t.Fatalf("list missing job:\n%s", out)
	}

	run(t, cfgPath, "jobs", "disable", id)
	if out := run(t, cfgPath, "jobs", "list"); strings.Contains(out, id) {
		t.Fatalf("disabled job listed without --all:\n%s", out)
	}
	if out := run(t, cfgPath, "jobs", "list", "--all"); !strings.Contains(out, id) {
		t.Fatalf("list --all missing job:\n%s", out)
	}

	if out := run(t, cfgPath, "jobs", "run", id, "--force"); !strings.Contains(out, "ran "+id+": ok") {
		t.Fatalf("run output %q", out)
	}
	if out := run(t, cfgPath, "history", "--job", id); !strings.Contains(out, "report") {
		t.Fatalf("history missing run:\n%s", out)
	}
	if out := run(t, cfgPath, "status"); !strings.Contains(out, "jobs:      1") {
		t.Fatalf("status output %q", out)
	}

	run(t, cfgPath, "jobs", "remove", id)
	if out := run(t, cfgPath, "jobs", "list", "--all"); strings.Contains(out, id) {
		t.Fatalf("removed job still listed:\n%s", out)
	}
}

func TestJobsAddRejectsBadSchedule(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.json"), "jobs", "add", "--schedule", "not a schedule at all"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected schedule error")
	}
}
