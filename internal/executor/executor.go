package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cronbot/internal/cron"
	logx "cronbot/pkg/logx"
)

// ErrTimeout is returned by a Timeout executor whose inner call overran.
var ErrTimeout = errors.New("executor timed out")

// Func adapts a function to cron.Executor.
type Func = cron.ExecutorFunc

// Log returns an executor that only records the job at info level.
func Log(log logx.Logger) cron.Executor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return Func(func(ctx context.Context, job cron.Job) error {
		log.Info("job fired",
			logx.Job(job.ID, job.Name),
			logx.String("kind", job.Payload.Kind),
			logx.String("message", job.Payload.Message),
		)
		return nil
	})
}

// Router picks an executor by payload channel for jobs that ask for delivery.
// Everything else, including unknown channels, goes to the fallback.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]cron.Executor
	fallback cron.Executor
}

func NewRouter(fallback cron.Executor) *Router {
	return &Router{routes: map[string]cron.Executor{}, fallback: fallback}
}

// Handle registers exec for channel (case-insensitive). A nil exec removes the route.
func (r *Router) Handle(channel string, exec cron.Executor) {
	key := strings.ToLower(strings.TrimSpace(channel))
	r.mu.Lock()
	defer r.mu.Unlock()
	if exec == nil {
		delete(r.routes, key)
		return
	}
	r.routes[key] = exec
}

func (r *Router) Execute(ctx context.Context, job cron.Job) error {
	exec := r.fallback
	if job.Payload.Deliver {
		r.mu.RLock()
		if e, ok := r.routes[strings.ToLower(strings.TrimSpace(job.Payload.Channel))]; ok {
			exec = e
		}
		r.mu.RUnlock()
	}
	if exec == nil {
		return fmt.Errorf("no executor for channel %q", job.Payload.Channel)
	}
	return exec.Execute(ctx, job)
}

// Timeout bounds each call of the wrapped executor. The limit can be changed
// at runtime; zero disables it.
type Timeout struct {
	next  cron.Executor
	limit atomic.Int64
}

func WithTimeout(next cron.Executor, d time.Duration) *Timeout {
	t := &Timeout{next: next}
	t.SetLimit(d)
	return t
}

func (t *Timeout) SetLimit(d time.Duration) {
	if d < 0 {
		d = 0
	}
	t.limit.Store(int64(d))
}

func (t *Timeout) Limit() time.Duration { return time.Duration(t.limit.Load()) }

// Execute returns ErrTimeout once the limit passes, even if the inner executor
// ignores its context; the inner call is left to finish in the background.
func (t *Timeout) Execute(ctx context.Context, job cron.Job) error {
	d := t.Limit()
	if d <= 0 {
		return t.next.Execute(ctx, job)
	}
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- t.next.Execute(cctx, job)
	}()

	select {
	case err := <-done:
		return err
	case <-cctx.Done():
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, d)
		}
		return cctx.Err()
	}
}
