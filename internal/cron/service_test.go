package cron

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cronbot/internal/eventbus"
	"cronbot/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T, store storage.Store, exec Executor, clock *fakeClock) *Service {
	t.Helper()
	if store == nil {
		store = storage.NewMemory()
	}
	opts := Options{Store: store, Executor: exec}
	if clock != nil {
		opts.Now = clock.Now
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func mustEvery(t *testing.T, d time.Duration) EverySchedule {
	t.Helper()
	s, err := Every(d)
	if err != nil {
		t.Fatalf("Every(%s): %v", d, err)
	}
	return s
}

func noop() Executor {
	return ExecutorFunc(func(ctx context.Context, job Job) error { return nil })
}

func TestNewRequiresStore(t *testing.T) {
	t.Parallel()
	if _, err := New(Options{}); !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("New without store err = %v", err)
	}
}

func TestAddComputesNextRunAndPersists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	store := storage.NewMemory()
	s := newTestService(t, store, noop(), clock)

	job, err := s.Add(ctx, AddRequest{Name: "tick", Schedule: mustEvery(t, time.Minute), Payload: Payload{Message: "hi"}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(job.ID) != 8 {
		t.Fatalf("id %q, want 8 chars", job.ID)
	}
	if !job.Enabled || job.Payload.Kind != PayloadAgentTurn {
		t.Fatalf("unexpected job %+v", job)
	}
	want := clock.Now().Add(time.Minute).UnixMilli()
	if job.State.NextRunAtMs == nil || *job.State.NextRunAtMs != want {
		t.Fatalf("nextRunAtMs = %v, want %d", job.State.NextRunAtMs, want)
	}

	b, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("store not written: %v", err)
	}
	persisted, err := DecodeJobs(b)
	if err != nil || len(persisted) != 1 || persisted[0].ID != job.ID {
		t.Fatalf("persisted = %+v, %v", persisted, err)
	}

	if _, err := s.Add(ctx, AddRequest{Name: "bad", Schedule: EverySchedule{}}); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("Add with zero interval err = %v", err)
	}
	if _, err := s.Add(ctx, AddRequest{Name: "none"}); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("Add without schedule err = %v", err)
	}
}

func TestAddIDsAreUnique(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService(t, nil, noop(), nil)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		job, err := s.Add(ctx, AddRequest{Name: fmt.Sprint(i), Schedule: mustEvery(t, time.Hour)})
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		if _, dup := seen[job.ID]; dup {
			t.Fatalf("duplicate id %q after %d adds", job.ID, i)
		}
		seen[job.ID] = struct{}{}
	}
}

func TestAddRetriesOnIDCollision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ids := []string{"same", "same", "other"}
	var n atomic.Int32
	s, err := New(Options{Store: storage.NewMemory(), NewID: func() string { return ids[int(n.Add(1)-1)%len(ids)] }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a, _ := s.Add(ctx, AddRequest{Name: "a", Schedule: mustEvery(t, time.Hour)})
	b, _ := s.Add(ctx, AddRequest{Name: "b", Schedule: mustEvery(t, time.Hour)})
	if a.ID != "same" || b.ID != "other" {
		t.Fatalf("ids = %q, %q", a.ID, b.ID)
	}
}

func TestListOrderingAndIdempotence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	s := newTestService(t, nil, noop(), clock)

	slow, _ := s.Add(ctx, AddRequest{Name: "slow", Schedule: mustEvery(t, time.Hour)})
	fast, _ := s.Add(ctx, AddRequest{Name: "fast", Schedule: mustEvery(t, time.Minute)})
	broken, _ := s.Add(ctx, AddRequest{Name: "broken", Schedule: CronSchedule{Expr: "nope"}})
	off, _ := s.Add(ctx, AddRequest{Name: "off", Schedule: mustEvery(t, time.Second)})
	s.Enable(ctx, off.ID, false)

	first := s.List(ctx, false)
	second := s.List(ctx, false)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("List is not idempotent:\n%+v\n%+v", first, second)
	}
	var got []string
	for _, j := range first {
		got = append(got, j.ID)
	}
	want := []string{fast.ID, slow.ID, broken.ID}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("List order = %v, want %v", got, want)
	}
	if broken.State.NextRunAtMs != nil {
		t.Fatal("unparsable cron should have no next run")
	}
	if all := s.List(ctx, true); len(all) != 4 || all[3].ID != off.ID {
		t.Fatalf("List(includeDisabled) = %+v", all)
	}
}

func TestEnableDisable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	s := newTestService(t, nil, noop(), clock)

	job, _ := s.Add(ctx, AddRequest{Name: "j", Schedule: mustEvery(t, 10*time.Second)})
	if st := s.Status(); st.NextWakeAtMs == nil || *st.NextWakeAtMs != *job.State.NextRunAtMs {
		t.Fatalf("status next wake = %v", st.NextWakeAtMs)
	}

	off, ok := s.Enable(ctx, job.ID, false)
	if !ok || off.Enabled || off.State.NextRunAtMs != nil {
		t.Fatalf("disable = %+v, %v", off, ok)
	}
	if st := s.Status(); st.NextWakeAtMs != nil || st.JobCount != 1 {
		t.Fatalf("disabled job still in wake set: %+v", st)
	}

	clock.Advance(time.Hour)
	on, ok := s.Enable(ctx, job.ID, true)
	if !ok || !on.Enabled || on.State.NextRunAtMs == nil {
		t.Fatalf("enable = %+v, %v", on, ok)
	}
	if *on.State.NextRunAtMs < clock.Now().UnixMilli() {
		t.Fatalf("re-enabled next run %d is in the past", *on.State.NextRunAtMs)
	}
	if on.UpdatedAtMs < on.CreatedAtMs {
		t.Fatalf("updatedAtMs %d < createdAtMs %d", on.UpdatedAtMs, on.CreatedAtMs)
	}

	if _, ok := s.Enable(ctx, "missing", true); ok {
		t.Fatal("Enable on unknown id reported success")
	}
	if s.Remove(ctx, "missing") {
		t.Fatal("Remove on unknown id reported success")
	}
	if !s.Remove(ctx, job.ID) {
		t.Fatal("Remove failed")
	}
	if _, ok := s.Get(ctx, job.ID); ok {
		t.Fatal("removed job still present")
	}
}

func TestOneShotAfterRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	s := newTestService(t, nil, noop(), clock)

	at := At(clock.Now().Add(time.Hour))
	del, _ := s.Add(ctx, AddRequest{Name: "delete", Schedule: at, DeleteAfterRun: true})
	keep, _ := s.Add(ctx, AddRequest{Name: "keep", Schedule: at})

	if !s.Run(ctx, del.ID, false) || !s.Run(ctx, keep.ID, false) {
		t.Fatal("Run of enabled one-shot jobs failed")
	}
	if _, ok := s.Get(ctx, del.ID); ok {
		t.Fatal("deleteAfterRun job still present")
	}
	all := s.List(ctx, true)
	if len(all) != 1 || all[0].ID != keep.ID {
		t.Fatalf("List(includeDisabled) = %+v", all)
	}
	got := all[0]
	if got.Enabled || got.State.NextRunAtMs != nil || got.State.LastStatus != StatusOK {
		t.Fatalf("kept one-shot = %+v", got)
	}

	if s.Run(ctx, keep.ID, false) {
		t.Fatal("Run without force dispatched a disabled job")
	}
	if !s.Run(ctx, keep.ID, true) {
		t.Fatal("forced Run did not dispatch")
	}
}

func TestRecurringRescheduleUsesPostExecutionClock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	exec := ExecutorFunc(func(ctx context.Context, job Job) error {
		clock.Advance(5 * time.Second)
		return nil
	})
	s := newTestService(t, nil, exec, clock)

	job, _ := s.Add(ctx, AddRequest{Name: "r", Schedule: EverySchedule{EveryMs: 1000}})
	start := clock.Now()
	if !s.Run(ctx, job.ID, false) {
		t.Fatal("Run failed")
	}
	got, _ := s.Get(ctx, job.ID)
	want := start.Add(5*time.Second).UnixMilli() + 1000
	if got.State.NextRunAtMs == nil || *got.State.NextRunAtMs != want {
		t.Fatalf("nextRunAtMs = %v, want %d", got.State.NextRunAtMs, want)
	}
	if got.State.LastRunAtMs == nil || *got.State.LastRunAtMs != start.UnixMilli() {
		t.Fatalf("lastRunAtMs = %v, want %d", got.State.LastRunAtMs, start.UnixMilli())
	}
}

func TestExecutorFailuresAreRecorded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	bus := eventbus.New()
	failed, unsub := bus.Subscribe(4, EventJobFailed)
	defer unsub()

	s, err := New(Options{Store: storage.NewMemory(), Bus: bus, Executor: ExecutorFunc(func(ctx context.Context, job Job) error {
		if job.Name == "panics" {
			panic("kaboom")
		}
		return errors.New("upstream down")
	})})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	bad, _ := s.Add(ctx, AddRequest{Name: "fails", Schedule: mustEvery(t, time.Minute)})
	pan, _ := s.Add(ctx, AddRequest{Name: "panics", Schedule: mustEvery(t, time.Minute)})
	s.Run(ctx, bad.ID, false)
	s.Run(ctx, pan.ID, false)

	j, _ := s.Get(ctx, bad.ID)
	if j.State.LastStatus != StatusError || j.State.LastError != "upstream down" || j.State.NextRunAtMs == nil {
		t.Fatalf("failed job state = %+v", j.State)
	}
	p, _ := s.Get(ctx, pan.ID)
	if p.State.LastStatus != StatusError || p.State.LastError != "panic: kaboom" {
		t.Fatalf("panicking job state = %+v", p.State)
	}
	if len(failed) != 2 {
		t.Fatalf("got %d failure events, want 2", len(failed))
	}

	s.SetExecutor(nil)
	s.Run(ctx, bad.ID, false)
	if j, _ := s.Get(ctx, bad.ID); j.State.LastStatus != StatusSkipped || j.State.LastError != "" {
		t.Fatalf("nil executor state = %+v", j.State)
	}

	h := s.History()
	if len(h) != 3 || h[0].Status != StatusError || h[2].Status != StatusSkipped {
		t.Fatalf("history = %+v", h)
	}
	runs, err := s.Runs(ctx, bad.ID, 0)
	if err != nil || len(runs) != 2 || runs[0].Status != string(StatusSkipped) {
		t.Fatalf("Runs = %+v, %v", runs, err)
	}
}

func TestRemoveDuringInFlightDispatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	exec := ExecutorFunc(func(ctx context.Context, job Job) error {
		close(started)
		<-release
		return nil
	})
	s := newTestService(t, nil, exec, nil)
	job, _ := s.Add(ctx, AddRequest{Name: "slow", Schedule: mustEvery(t, time.Hour)})

	done := make(chan bool, 1)
	go func() { done <- s.Run(ctx, job.ID, false) }()
	<-started

	removed := make(chan bool, 1)
	go func() { removed <- s.Remove(ctx, job.ID) }()
	select {
	case ok := <-removed:
		if !ok {
			t.Fatal("Remove reported nothing removed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Remove blocked behind the executor")
	}

	close(release)
	if !<-done {
		t.Fatal("Run reported no dispatch")
	}
	if all := s.List(ctx, true); len(all) != 0 {
		t.Fatalf("removed job resurrected: %+v", all)
	}
}

func TestStartFailClosedOnMalformedStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	doc := `{"version":1,"jobs":[
		{"id":"a","name":"a","enabled":true,"schedule":{"kind":"every","everyMs":1000},"payload":{"kind":"agent_turn","message":"","deliver":false},"state":{},"createdAtMs":1,"updatedAtMs":1,"deleteAfterRun":false},
		{"id":"b","name":"b","enabled":true,"schedule":{"kind":"every"},"payload":{"kind":"agent_turn","message":"","deliver":false},"state":{},"createdAtMs":1,"updatedAtMs":1,"deleteAfterRun":false},
		{"id":"c","name":"c","enabled":true,"schedule":{"kind":"at","atMs":99999999999999},"payload":{"kind":"agent_turn","message":"","deliver":false},"state":{},"createdAtMs":1,"updatedAtMs":1,"deleteAfterRun":false},
		{"id":"d","name":"d","enabled":true,"schedule":{"kind":"cron","expr":"* * * * *"},"payload":{"kind":"agent_turn","message":"","deliver":false},"state":{},"createdAtMs":1,"updatedAtMs":1,"deleteAfterRun":false}
	]}`
	if err := store.Save(ctx, []byte(doc)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	bus := eventbus.New()
	storeErrs, unsub := bus.Subscribe(4, EventStoreError)
	defer unsub()
	s, err := New(Options{Store: store, Bus: bus, Executor: noop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(ctx)

	if all := s.List(ctx, true); len(all) != 0 {
		t.Fatalf("malformed store produced %d jobs", len(all))
	}
	if len(storeErrs) != 1 {
		t.Fatalf("got %d store error events, want 1", len(storeErrs))
	}
}

func TestStartReconcilesPersistedJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cron", "jobs.json")
	store, err := storage.Open(storage.Config{Driver: "file", Path: path}, nopLog())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	clock := newFakeClock()
	first := newTestService(t, store, noop(), clock)
	job, _ := first.Add(ctx, AddRequest{Name: "p", Schedule: mustEvery(t, time.Minute)})
	off, _ := first.Add(ctx, AddRequest{Name: "off", Schedule: mustEvery(t, time.Minute)})
	first.Enable(ctx, off.ID, false)

	clock.Advance(3 * time.Hour)
	second := newTestService(t, store, noop(), clock)
	if err := second.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got, ok := second.Get(ctx, job.ID)
	if !ok {
		t.Fatal("job not reloaded")
	}
	want := clock.Now().Add(time.Minute).UnixMilli()
	if got.State.NextRunAtMs == nil || *got.State.NextRunAtMs != want {
		t.Fatalf("reconciled nextRunAtMs = %v, want %d", got.State.NextRunAtMs, want)
	}
	if o, _ := second.Get(ctx, off.ID); o.Enabled || o.State.NextRunAtMs != nil {
		t.Fatalf("disabled job was re-armed: %+v", o)
	}
}

func TestStartTwiceErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService(t, nil, noop(), nil)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start err = %v, want ErrAlreadyRunning", err)
	}
	if !s.Status().Running {
		t.Fatal("status not running")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	if s.Status().Running {
		t.Fatal("status still running after Stop")
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("restart after Stop: %v", err)
	}
}

func TestServiceRunsDueJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var calls atomic.Int32
	exec := ExecutorFunc(func(ctx context.Context, job Job) error {
		calls.Add(1)
		return nil
	})
	s := newTestService(t, nil, exec, nil)
	if _, err := s.Add(ctx, AddRequest{Name: "fast", Schedule: mustEvery(t, 100*time.Millisecond)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(350 * time.Millisecond)

	if st := s.Status(); st.JobCount != 1 || !st.Running {
		t.Fatalf("status = %+v", st)
	}
	h := s.History()
	if len(h) < 2 {
		t.Fatalf("got %d executions, want at least 2", len(h))
	}
	for _, item := range h {
		if item.Status != StatusOK {
			t.Fatalf("execution status = %q", item.Status)
		}
	}
	if int(calls.Load()) < 2 {
		t.Fatalf("executor called %d times", calls.Load())
	}
}

func TestAddWakesLoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ran := make(chan string, 1)
	exec := ExecutorFunc(func(ctx context.Context, job Job) error {
		select {
		case ran <- job.ID:
		default:
		}
		return nil
	})
	s, err := New(Options{Store: storage.NewMemory(), Executor: exec, Config: Config{IdleInterval: time.Hour}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(ctx)

	job, _ := s.Add(ctx, AddRequest{Name: "soon", Schedule: At(time.Now().Add(50 * time.Millisecond)), DeleteAfterRun: true})
	select {
	case id := <-ran:
		if id != job.ID {
			t.Fatalf("ran %q, want %q", id, job.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("one-shot added after Start never ran")
	}
}

func TestAddRejectsUnusableSchedules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService(t, nil, noop(), newFakeClock())
	for name, sched := range map[string]Schedule{
		"interval overflows":  EverySchedule{EveryMs: math.MaxInt64},
		"interval past max":   EverySchedule{EveryMs: maxEveryMs + 1},
		"unknown timezone":    CronSchedule{Expr: "0 9 * * *", TZ: "Mars/Olympus"},
		"empty cron":          CronSchedule{Expr: "  "},
		"non-positive at":     AtSchedule{AtMs: 0},
		"non-positive period": EverySchedule{EveryMs: -5},
	} {
		if _, err := s.Add(ctx, AddRequest{Name: name, Schedule: sched}); !errors.Is(err, ErrInvalidSchedule) {
			t.Fatalf("%s: Add err = %v, want ErrInvalidSchedule", name, err)
		}
	}
	if n := len(s.List(ctx, true)); n != 0 {
		t.Fatalf("rejected schedules left %d jobs behind", n)
	}

	job, err := s.Add(ctx, AddRequest{Name: "longest", Schedule: EverySchedule{EveryMs: maxEveryMs}})
	if err != nil {
		t.Fatalf("Add at max interval: %v", err)
	}
	if job.State.NextRunAtMs == nil || *job.State.NextRunAtMs <= newFakeClock().Now().UnixMilli() {
		t.Fatalf("max interval next run = %v", job.State.NextRunAtMs)
	}
}

func TestSleepForFarFutureWakeIsBounded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	s := newTestService(t, nil, noop(), clock)
	idle := s.cfg.IdleInterval

	far := time.Date(2500, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.Add(ctx, AddRequest{Name: "far", Schedule: At(far)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := s.sleepFor(); got != idle {
		t.Fatalf("sleepFor with wake in year 2500 = %s, want idle %s", got, idle)
	}

	soon, _ := s.Add(ctx, AddRequest{Name: "soon", Schedule: mustEvery(t, 1500*time.Millisecond)})
	if got := s.sleepFor(); got != 1500*time.Millisecond {
		t.Fatalf("sleepFor = %s, want 1.5s", got)
	}
	clock.Advance(time.Minute)
	if got := s.sleepFor(); got != 0 {
		t.Fatalf("sleepFor with overdue job = %s, want 0", got)
	}
	s.Remove(ctx, soon.ID)
	if got := s.sleepFor(); got != idle {
		t.Fatalf("sleepFor after removal = %s, want idle %s", got, idle)
	}
}

func TestStopPromptWithFarFutureJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var calls atomic.Int32
	exec := ExecutorFunc(func(ctx context.Context, job Job) error {
		calls.Add(1)
		return nil
	})
	s, err := New(Options{Store: storage.NewMemory(), Executor: exec, Config: Config{IdleInterval: time.Hour}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	far := time.Date(2500, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.Add(ctx, AddRequest{Name: "far", Schedule: At(far)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add(ctx, AddRequest{Name: "slow", Schedule: EverySchedule{EveryMs: maxEveryMs}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Fatalf("executor ran %d times for jobs due centuries from now", n)
	}

	s.mu.Lock()
	r := s.run
	s.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	s.Stop(stopCtx)
	// Running turns false on the stop signal alone; the loop exit closes done.
	select {
	case <-r.done:
	default:
		t.Fatal("loop did not exit within the stop deadline")
	}
}

func TestTickSkipsJobDisabledEarlierInBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	var (
		mu  sync.Mutex
		ran []string
		s   *Service
		b   Job
	)
	exec := ExecutorFunc(func(ctx context.Context, job Job) error {
		mu.Lock()
		ran = append(ran, job.Name)
		mu.Unlock()
		if job.Name == "a" {
			s.Enable(ctx, b.ID, false)
		}
		return nil
	})
	s = newTestService(t, nil, exec, clock)
	if _, err := s.Add(ctx, AddRequest{Name: "a", Schedule: mustEvery(t, time.Second)}); err != nil {
		t.Fatalf("Add a: %v", err)
	}
	var err error
	if b, err = s.Add(ctx, AddRequest{Name: "b", Schedule: mustEvery(t, time.Second)}); err != nil {
		t.Fatalf("Add b: %v", err)
	}

	clock.Advance(2 * time.Second)
	s.tick(ctx)

	mu.Lock()
	got := append([]string(nil), ran...)
	mu.Unlock()
	if !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("executed %v, want only [a]", got)
	}
	after, _ := s.Get(ctx, b.ID)
	if after.Enabled || after.State.LastRunAtMs != nil || after.State.NextRunAtMs != nil {
		t.Fatalf("disabled job b = %+v", after)
	}
	if !s.Run(ctx, b.ID, true) {
		t.Fatal("forced Run of disabled job refused")
	}
	if s.Run(ctx, b.ID, false) {
		t.Fatal("unforced Run of disabled job executed")
	}
}
