package cron

import (
	"math"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SecondOptional accepts both 5-field and 6-field (leading seconds) expressions.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextRun returns the next instant (unix ms) at which s is due, strictly after nowMs.
// ok is false when the schedule is exhausted or cannot be evaluated.
func NextRun(s Schedule, nowMs int64) (next int64, ok bool) {
	switch v := s.(type) {
	case AtSchedule:
		if v.AtMs > nowMs {
			return v.AtMs, true
		}
	case EverySchedule:
		if v.EveryMs > 0 && v.EveryMs <= math.MaxInt64-nowMs {
			return nowMs + v.EveryMs, true
		}
	case CronSchedule:
		loc, err := cronLocation(v.TZ)
		if err != nil {
			return 0, false
		}
		sched, err := cronParser.Parse(strings.TrimSpace(v.Expr))
		if err != nil {
			return 0, false
		}
		t := sched.Next(time.UnixMilli(nowMs).In(loc))
		if t.IsZero() {
			return 0, false
		}
		return t.UnixMilli(), true
	}
	return 0, false
}

func nextRunPtr(s Schedule, nowMs int64) *int64 {
	if next, ok := NextRun(s, nowMs); ok {
		return &next
	}
	return nil
}

func cronLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}
