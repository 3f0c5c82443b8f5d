// Package app wires configuration, logging, storage, executors, the scheduler
// and failure alerts into one long-running process.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"cronbot/internal/config"
	"cronbot/internal/cron"
	"cronbot/internal/eventbus"
	"cronbot/internal/executor"
	"cronbot/internal/executor/telegram"
	"cronbot/internal/notifier"
	"cronbot/internal/runtime/supervisor"
	"cronbot/internal/storage"
	logx "cronbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store  storage.Store
	bot    *telegram.Bot
	exec   *executor.Timeout
	cron   *cron.Service
	alerts *notifier.Service

	cronEnabled bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath, logx.NewConsole("INFO").With(logx.String("comp", "config")))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// The chat sink needs the bot and the bot needs a logger, so the sender is attached afterwards.
	logSvc, log := logx.New(mapLogConfig(cfg), nil)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	fail := func(err error) (*App, error) {
		_ = logSvc.Close()
		return nil, err
	}

	bot, err := newBot(cfg, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return fail(err)
	}
	if bot != nil {
		logSvc.SetSender(bot)
	}

	bus := eventbus.New()
	exec, err := newExecutor(cfg, bot, log.With(logx.String("comp", "executor")))
	if err != nil {
		return fail(err)
	}
	cronSvc, store, err := OpenCron(cfg, exec, bus, log)
	if err != nil {
		return fail(err)
	}

	acfg, err := mapAlertsConfig(cfg)
	if err != nil {
		_ = store.Close()
		return fail(err)
	}
	var sender notifier.Sender
	if bot != nil {
		sender = bot
	}
	alerts := notifier.New(acfg, sender, bus, log.With(logx.String("comp", "alerts")))

	a := &App{
		cfgm:        cfgm,
		log:         log.With(logx.String("comp", "app")),
		logs:        logSvc,
		bus:         bus,
		store:       store,
		bot:         bot,
		exec:        exec,
		cron:        cronSvc,
		alerts:      alerts,
		cronEnabled: cfg.Cron.IsEnabled(),
	}
	if sc, err := mapStorageConfig(cfg); err == nil {
		a.log.Info("job store opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}
	return a, nil
}

func (a *App) Cron() *cron.Service { return a.cron }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if a.cronEnabled {
		if err := a.cron.Start(a.sup.Context()); err != nil {
			return fmt.Errorf("cron start: %w", err)
		}
	} else {
		a.log.Info("cron disabled via config; jobs will not fire")
	}
	a.alerts.Start(a.sup.Context())

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	updates, unsubCfg := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer unsubCfg()
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-updates:
				if !ok {
					return
				}
				// keep only the newest queued config
				for drained := false; !drained; {
					select {
					case newer := <-updates:
						if newer != nil {
							next = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if every := watchdogInterval(a.log); every > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) { runWatchdog(c, a.log, every) })
	}
	sdNotify(a.log, daemon.SdNotifyReady)

	st := a.cron.Status()
	a.log.Info("app started", logx.Bool("cron", st.Running), logx.Int("jobs", st.JobCount))
	return nil
}

// applyConfig pushes a reloaded config into the live components.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(prev, next); len(restart) > 0 {
		a.log.Warn("config change needs a restart to take effect", logx.String("keys", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(next))

	if cc, err := mapCronConfig(next); err != nil {
		a.log.Warn("invalid cron config; keeping previous", logx.Err(err))
	} else {
		a.cron.Apply(cc)
	}
	if limit, err := mapExecutorTimeout(next); err != nil {
		a.log.Warn("invalid executor timeout; keeping previous", logx.Err(err))
	} else {
		a.exec.SetLimit(limit)
	}
	if acfg, err := mapAlertsConfig(next); err != nil {
		a.log.Warn("invalid alerts config; keeping previous", logx.Err(err))
	} else {
		a.alerts.Apply(acfg)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.sup.Cancel()

	a.step(ctx, "cron", 3*time.Second, func(c context.Context) error { a.cron.Stop(c); return nil })
	a.step(ctx, "alerts", time.Second, func(c context.Context) error { a.alerts.Stop(c); return nil })
	a.step(ctx, "storage", time.Second, func(c context.Context) error { return a.store.Close() })
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step bounded by max and the caller's deadline. A step
// that overruns is logged and left behind.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
