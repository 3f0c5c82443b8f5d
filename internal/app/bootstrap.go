package app

import (
	"fmt"

	"cronbot/internal/config"
	"cronbot/internal/cron"
	"cronbot/internal/eventbus"
	"cronbot/internal/executor"
	"cronbot/internal/executor/telegram"
	"cronbot/internal/storage"
	logx "cronbot/pkg/logx"
)

// newBot returns nil when no token is configured.
func newBot(cfg *config.Config, log logx.Logger) (*telegram.Bot, error) {
	tc := mapTelegramConfig(cfg)
	if tc.Token == "" {
		return nil, nil
	}
	bot, err := telegram.NewBot(tc, log)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return bot, nil
}

// newExecutor builds the dispatch chain: a timeout around a channel router
// whose fallback only logs. bot may be nil.
func newExecutor(cfg *config.Config, bot *telegram.Bot, log logx.Logger) (*executor.Timeout, error) {
	limit, err := mapExecutorTimeout(cfg)
	if err != nil {
		return nil, err
	}
	router := executor.NewRouter(executor.Log(log))
	if bot != nil {
		router.Handle("telegram", telegram.NewExecutor(bot, cfg.Telegram.DefaultChatID))
	}
	return executor.WithTimeout(router, limit), nil
}

// BuildExecutor is newExecutor plus the Telegram bot when a token is set.
func BuildExecutor(cfg *config.Config, log logx.Logger) (cron.Executor, error) {
	bot, err := newBot(cfg, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	return newExecutor(cfg, bot, log.With(logx.String("comp", "executor")))
}

func openStore(cfg *config.Config, log logx.Logger) (storage.Store, storage.Config, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, sc, err
	}
	st, err := storage.Open(sc, log)
	if err != nil {
		return nil, sc, fmt.Errorf("open %s store %s: %w", sc.Driver, sc.Path, err)
	}
	return st, sc, nil
}

// OpenCron opens the configured store and builds a scheduler without
// starting its loop. The CLI uses it to edit jobs offline. Closing the
// returned store is the caller's job.
func OpenCron(cfg *config.Config, exec cron.Executor, bus eventbus.Bus, log logx.Logger) (*cron.Service, storage.Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	st, _, err := openStore(cfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, nil, err
	}
	cc, err := mapCronConfig(cfg)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	svc, err := cron.New(cron.Options{
		Store:    st,
		Executor: exec,
		Log:      log.With(logx.String("comp", "cron")),
		Bus:      bus,
		Config:   cc,
	})
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return svc, st, nil
}
