package cron

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule turns a user-facing schedule string into a Schedule.
//
// Supported forms:
//   - One-shot: "at:2026-01-02T15:04:05Z" (RFC3339), "at:+45m" (relative to now),
//     or a bare RFC3339 timestamp
//   - Interval: "every:10m", "55m", "2h30m", or HH:MM ("02:30" = every 2h30m)
//   - Cron: "cron:*/5 * * * *", "*/5 * * * *", "@hourly", "@every 5m"
//
// tz applies to cron schedules only.
func ParseSchedule(raw, tz string, now time.Time) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("%w: schedule required", ErrInvalidSchedule)
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return Cron(s[len("cron:"):], tz)
	case strings.HasPrefix(low, "every:"):
		return parseEvery(s[len("every:"):])
	case strings.HasPrefix(low, "interval:"):
		return parseEvery(s[len("interval:"):])
	case strings.HasPrefix(low, "at:"):
		return parseAt(s[len("at:"):], now)
	}

	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return Cron(s, tz)
	}
	if reHHMM.MatchString(s) {
		return parseEvery(s)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return At(t), nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return Every(d)
	}
	return nil, fmt.Errorf(
		"%w: %q (use cron like '*/5 * * * *', an interval like '55m' or '02:30', or at:<RFC3339>)",
		ErrInvalidSchedule, raw,
	)
}

func parseEvery(v string) (Schedule, error) {
	v = strings.TrimSpace(v)
	if m := reHHMM.FindStringSubmatch(v); len(m) == 3 {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return nil, fmt.Errorf("%w: invalid minutes in %q", ErrInvalidSchedule, v)
		}
		return Every(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid interval %q (use HH:MM or a duration like '55m')", ErrInvalidSchedule, v)
	}
	return Every(d)
}

func parseAt(v string, now time.Time) (Schedule, error) {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "+") {
		d, err := time.ParseDuration(v[1:])
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%w: invalid relative time %q", ErrInvalidSchedule, v)
		}
		return At(now.Add(d)), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timestamp %q (want RFC3339): %v", ErrInvalidSchedule, v, err)
	}
	return At(t), nil
}
