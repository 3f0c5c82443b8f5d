package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cronbot/internal/cron"
	"cronbot/internal/eventbus"
	rtsup "cronbot/internal/runtime/supervisor"
	logx "cronbot/pkg/logx"
)

const (
	historyCap      = 100
	dedupMaxEntries = 2000
)

type Config struct {
	Enabled     bool
	ChatID      int64
	ThreadID    int
	DedupWindow time.Duration // 0 disables dedup
	RatePerSec  int           // default 1
}

// Sender delivers text to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, threadID int, text string) error
}

type HistoryItem struct {
	At   time.Time
	Key  string
	Text string
	Err  string
}

type Service struct {
	log    logx.Logger
	bus    eventbus.Bus
	sender Sender
	now    func() time.Time

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	sup     *rtsup.Supervisor
	unsub   func()

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender Sender, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log, bus: bus, sender: sender, now: time.Now, dedup: map[string]time.Time{}}
	s.Apply(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

func (s *Service) config() (Config, *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter
}

// Start subscribes to the bus. It is a no-op when already started or when
// there is no bus or sender.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || s.bus == nil || s.sender == nil {
		return
	}
	events, unsub := s.bus.Subscribe(64, cron.EventJobFailed, cron.EventStoreError)
	s.unsub = unsub
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	s.sup.Go0("notifier.worker", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				s.handle(c, ev)
			}
		}
	})
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup, unsub := s.sup, s.unsub
	s.sup, s.unsub = nil, nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	if sup != nil {
		if err := sup.Stop(ctx); err != nil {
			s.log.Warn("notifier stop timed out", logx.Err(err))
		}
	}
}

func (s *Service) handle(ctx context.Context, ev eventbus.Event) {
	cfg, lim := s.config()
	if !cfg.Enabled || cfg.ChatID == 0 {
		return
	}
	key, text, ok := Format(ev)
	if !ok {
		return
	}
	if !s.allow(key, cfg.DedupWindow) {
		s.log.Debug("alert suppressed", logx.String("key", key))
		return
	}
	if err := lim.Wait(ctx); err != nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := s.sender.SendText(sctx, cfg.ChatID, cfg.ThreadID, text)
	cancel()

	item := HistoryItem{At: s.now(), Key: key, Text: text}
	if err != nil {
		item.Err = err.Error()
		s.log.Warn("alert send failed", logx.String("key", key), logx.Err(err))
	}
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.hmu.Unlock()
}

// allow reports whether key is outside its dedup window, and opens a new one.
func (s *Service) allow(key string, window time.Duration) bool {
	if window <= 0 {
		return true
	}
	now := s.now()
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	if len(s.dedup) >= dedupMaxEntries {
		for k, until := range s.dedup {
			if !now.Before(until) {
				delete(s.dedup, k)
			}
		}
		if len(s.dedup) >= dedupMaxEntries {
			s.dedup = map[string]time.Time{}
		}
	}
	s.dedup[key] = now.Add(window)
	return true
}

func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

// Format renders an alert for a scheduler event. key identifies repeats of
// the same failure.
func Format(ev eventbus.Event) (key, text string, ok bool) {
	switch d := ev.Data.(type) {
	case cron.JobEvent:
		if ev.Type != cron.EventJobFailed {
			return "", "", false
		}
		name := d.Name
		if strings.TrimSpace(name) == "" {
			name = d.ID
		}
		key = "job:" + d.ID + ":" + d.Error
		text = fmt.Sprintf("[cronbot] job %q (%s) failed after %s\n%s", name, d.ID, d.Duration.Round(time.Millisecond), d.Error)
		return key, text, true
	case cron.StoreEvent:
		return "store:" + d.Op, fmt.Sprintf("[cronbot] job store %s failed\n%s", d.Op, d.Error), true
	}
	return "", "", false
}
