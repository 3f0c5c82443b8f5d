package cron

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cronbot/internal/eventbus"
	rtsup "cronbot/internal/runtime/supervisor"
	"cronbot/internal/storage"
	logx "cronbot/pkg/logx"
)

// Options wires a Service. Store is required; everything else has a default.
type Options struct {
	Store    storage.Store
	Executor Executor
	Log      logx.Logger
	Bus      eventbus.Bus
	Config   Config

	// Now and NewID are test seams.
	Now   func() time.Time
	NewID func() string
}

type executorSlot struct{ exec Executor }

// Service owns the job registry and the scheduler loop.
type Service struct {
	store storage.Store
	log   logx.Logger
	bus   eventbus.Bus
	now   func() time.Time
	newID func() string

	exec atomic.Pointer[executorSlot]

	mu     sync.Mutex
	cfg    Config
	jobs   []Job // insertion order
	loaded bool
	run    *runHandle

	loadMu sync.Mutex
	saveMu sync.Mutex

	// wake nudges the loop to recompute its deadline.
	wake chan struct{}

	hmu     sync.Mutex
	history []HistoryItem
}

type runHandle struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	sup      *rtsup.Supervisor
}

func (r *runHandle) signalStop() { r.stopOnce.Do(func() { close(r.stop) }) }

func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, ErrStoreRequired
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		store: opts.Store,
		log:   log,
		bus:   opts.Bus,
		now:   opts.Now,
		newID: opts.NewID,
		cfg:   opts.Config.withDefaults(),
		wake:  make(chan struct{}, 1),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.NewString()[:8] }
	}
	s.SetExecutor(opts.Executor)
	return s, nil
}

// SetExecutor swaps the executor. Dispatches already in flight keep the old one.
func (s *Service) SetExecutor(e Executor) {
	s.exec.Store(&executorSlot{exec: e})
}

func (s *Service) executor() Executor {
	if slot := s.exec.Load(); slot != nil {
		return slot.exec
	}
	return nil
}

// Apply updates the hot-reloadable settings.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.hmu.Lock()
	if len(s.history) > cfg.HistorySize {
		s.history = append([]HistoryItem(nil), s.history[len(s.history)-cfg.HistorySize:]...)
	}
	s.hmu.Unlock()
	s.signal()
}

// Start loads the job document, reconciles next runs against the current time,
// persists, and launches the scheduler loop. It returns ErrAlreadyRunning if a
// loop is active; if a Stop is in progress it waits for it first.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if prev := s.run; prev != nil {
		select {
		case <-prev.done:
		default:
			stopping := false
			select {
			case <-prev.stop:
				stopping = true
			default:
			}
			s.mu.Unlock()
			if !stopping {
				return ErrAlreadyRunning
			}
			select {
			case <-prev.done:
			case <-ctx.Done():
				return ctx.Err()
			}
			s.mu.Lock()
			if s.run != prev {
				s.mu.Unlock()
				return ErrAlreadyRunning
			}
		}
	}
	r := &runHandle{stop: make(chan struct{}), done: make(chan struct{})}
	s.run = r
	s.mu.Unlock()

	s.ensureLoaded(ctx)

	nowMs := s.now().UnixMilli()
	s.mu.Lock()
	for i := range s.jobs {
		if s.jobs[i].Enabled {
			s.jobs[i].State.NextRunAtMs = nextRunPtr(s.jobs[i].Schedule, nowMs)
		}
	}
	count := len(s.jobs)
	s.mu.Unlock()
	s.persist(ctx)

	r.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	r.sup.GoRestart("cron.loop", 250*time.Millisecond, 10*time.Second, func(c context.Context) error {
		s.loop(c, r.stop)
		return nil
	})
	go func() {
		_ = r.sup.Wait(context.Background())
		close(r.done)
	}()

	s.log.Info("cron service started", logx.Int("jobs", count))
	return nil
}

// Stop signals the loop and waits for it to exit or for ctx to end.
// A dispatch batch already in progress is allowed to finish.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return
	}
	start := s.now()
	r.signalStop()
	select {
	case <-r.done:
		s.log.Info("cron service stopped", logx.Duration("took", s.now().Sub(start)))
	case <-ctx.Done():
		s.log.Warn("cron service stop timed out", logx.Err(ctx.Err()))
	}
}

// Running reports whether the loop is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	case <-r.stop:
		return false
	default:
		return true
	}
}

func (s *Service) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) loop(ctx context.Context, stop <-chan struct{}) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		timer.Reset(s.sleepFor())
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-s.wake:
			continue
		case <-timer.C:
		}
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}
		s.tick(ctx)
	}
}

// sleepFor returns the time until the earliest next run, capped by the idle interval.
func (s *Service) sleepFor() time.Duration {
	nowMs := s.now().UnixMilli()
	s.mu.Lock()
	idle := s.cfg.IdleInterval
	next, ok := s.nextWakeLocked()
	s.mu.Unlock()
	if !ok {
		return idle
	}
	// Compare in ms before converting: a far-future wake overflows Duration.
	wait := next - nowMs
	switch {
	case wait <= 0:
		return 0
	case wait >= idle.Milliseconds():
		return idle
	}
	return time.Duration(wait) * time.Millisecond
}

func (s *Service) nextWakeLocked() (int64, bool) {
	next := int64(math.MaxInt64)
	for _, j := range s.jobs {
		if j.Enabled && j.State.NextRunAtMs != nil && *j.State.NextRunAtMs < next {
			next = *j.State.NextRunAtMs
		}
	}
	return next, next != math.MaxInt64
}

// tick dispatches every job due at the current instant, then persists once.
func (s *Service) tick(ctx context.Context) {
	nowMs := s.now().UnixMilli()
	s.mu.Lock()
	var due []string
	for _, j := range s.jobs {
		if j.Enabled && j.State.NextRunAtMs != nil && *j.State.NextRunAtMs <= nowMs {
			due = append(due, j.ID)
		}
	}
	s.mu.Unlock()
	if len(due) == 0 {
		return
	}
	s.log.Debug("cron tick", logx.Int("due", len(due)))
	for _, id := range due {
		s.dispatch(ctx, id, true)
	}
	s.persist(ctx)
}

// ensureLoaded reads the store once per Service. A missing or malformed
// document yields an empty registry.
func (s *Service) ensureLoaded(ctx context.Context) {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if loaded {
		return
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	s.mu.Lock()
	loaded = s.loaded
	s.mu.Unlock()
	if loaded {
		return
	}

	jobs := s.loadJobs(ctx)
	s.mu.Lock()
	s.jobs = jobs
	s.loaded = true
	s.mu.Unlock()
}

func (s *Service) loadJobs(ctx context.Context) []Job {
	b, err := s.store.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.storeFailed("load", err)
		return nil
	}
	jobs, err := DecodeJobs(b)
	if err != nil {
		s.storeFailed("decode", err)
		return nil
	}
	return jobs
}

// persist writes a snapshot of the registry. Failures are logged and published, never returned.
func (s *Service) persist(ctx context.Context) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	jobs := cloneJobs(s.jobs)
	s.mu.Unlock()

	b, err := EncodeJobs(jobs)
	if err != nil {
		s.storeFailed("encode", err)
		return
	}
	if err := s.store.Save(context.WithoutCancel(ctx), b); err != nil {
		s.storeFailed("save", err)
	}
}

func (s *Service) storeFailed(op string, err error) {
	s.log.Warn("cron store "+op+" failed", logx.Err(err))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: EventStoreError, Time: s.now(), Data: StoreEvent{Op: op, Error: err.Error()}})
	}
}

func cloneJobs(in []Job) []Job {
	out := make([]Job, len(in))
	copy(out, in)
	return out
}
