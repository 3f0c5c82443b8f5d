package cron

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Kind is the persisted discriminator of a Schedule.
type Kind string

const (
	KindAt    Kind = "at"
	KindEvery Kind = "every"
	KindCron  Kind = "cron"
)

// Schedule describes when a job runs. The concrete types are AtSchedule,
// EverySchedule and CronSchedule; no other implementations exist.
type Schedule interface {
	Kind() Kind
	String() string
	isSchedule()
}

// AtSchedule fires once at AtMs (unix milliseconds).
type AtSchedule struct {
	AtMs int64
}

// EverySchedule fires every EveryMs milliseconds.
type EverySchedule struct {
	EveryMs int64
}

// CronSchedule fires on a calendar expression. TZ is an IANA zone name; empty means UTC.
type CronSchedule struct {
	Expr string
	TZ   string
}

func (AtSchedule) Kind() Kind    { return KindAt }
func (EverySchedule) Kind() Kind { return KindEvery }
func (CronSchedule) Kind() Kind  { return KindCron }

func (AtSchedule) isSchedule()    {}
func (EverySchedule) isSchedule() {}
func (CronSchedule) isSchedule()  {}

func (s AtSchedule) String() string {
	return "at " + time.UnixMilli(s.AtMs).UTC().Format(time.RFC3339)
}

func (s EverySchedule) String() string {
	return "every " + (time.Duration(s.EveryMs) * time.Millisecond).String()
}

func (s CronSchedule) String() string {
	if s.TZ == "" {
		return "cron " + s.Expr
	}
	return "cron " + s.Expr + " (" + s.TZ + ")"
}

// At returns a one-shot schedule for t.
func At(t time.Time) AtSchedule { return AtSchedule{AtMs: t.UnixMilli()} }

// Every returns an interval schedule. d must be at least one millisecond.
func Every(d time.Duration) (EverySchedule, error) {
	ms := d.Milliseconds()
	if ms <= 0 {
		return EverySchedule{}, fmt.Errorf("%w: interval must be >= 1ms, got %s", ErrInvalidSchedule, d)
	}
	return EverySchedule{EveryMs: ms}, nil
}

// maxEveryMs is the longest interval that still fits a time.Duration.
const maxEveryMs = math.MaxInt64 / int64(time.Millisecond)

// Cron returns a calendar schedule. The expression is validated; tz may be empty.
func Cron(expr, tz string) (CronSchedule, error) {
	expr = strings.TrimSpace(expr)
	tz = strings.TrimSpace(tz)
	if _, err := cronParser.Parse(expr); err != nil {
		return CronSchedule{}, fmt.Errorf("%w: cron %q: %v", ErrInvalidSchedule, expr, err)
	}
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return CronSchedule{}, fmt.Errorf("%w: timezone %q: %v", ErrInvalidSchedule, tz, err)
		}
	}
	return CronSchedule{Expr: expr, TZ: tz}, nil
}

// validateSchedule rejects values that cannot exist in a persisted document.
// Unparsable cron expressions are accepted: such jobs simply never become due.
func validateSchedule(s Schedule) error {
	switch v := s.(type) {
	case nil:
		return fmt.Errorf("%w: schedule required", ErrInvalidSchedule)
	case AtSchedule:
		if v.AtMs <= 0 {
			return fmt.Errorf("%w: at timestamp required", ErrInvalidSchedule)
		}
	case EverySchedule:
		if v.EveryMs <= 0 {
			return fmt.Errorf("%w: interval must be > 0", ErrInvalidSchedule)
		}
		if v.EveryMs > maxEveryMs {
			return fmt.Errorf("%w: interval %dms too large", ErrInvalidSchedule, v.EveryMs)
		}
	case CronSchedule:
		if strings.TrimSpace(v.Expr) == "" {
			return fmt.Errorf("%w: cron expression required", ErrInvalidSchedule)
		}
		if _, err := cronLocation(v.TZ); err != nil {
			return fmt.Errorf("%w: timezone %q: %v", ErrInvalidSchedule, v.TZ, err)
		}
	}
	return nil
}
