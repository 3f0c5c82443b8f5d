package app

import (
	"path/filepath"
	"strings"
	"time"

	"cronbot/internal/config"
	"cronbot/internal/cron"
	"cronbot/internal/executor/telegram"
	"cronbot/internal/notifier"
	"cronbot/internal/storage"
	logx "cronbot/pkg/logx"
)

const defaultStoreDir = "./data/cron"

// mapStorageConfig resolves the job store. storage.path wins over
// cron.store_path; with neither set the store lives under ./data/cron.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" {
		driver = "file"
	}
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = strings.TrimSpace(cfg.Cron.StorePath)
	}
	if path == "" {
		switch driver {
		case "sqlite", "sqlite3":
			path = filepath.Join(defaultStoreDir, "jobs.db")
		default:
			path = filepath.Join(defaultStoreDir, "jobs.json")
		}
	}
	busy, err := config.DurationOr("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
}

func mapCronConfig(cfg *config.Config) (cron.Config, error) {
	idle, err := config.ParseDurationField("cron.idle_interval", cfg.Cron.IdleInterval)
	if err != nil {
		return cron.Config{}, err
	}
	return cron.Config{IdleInterval: idle, HistorySize: cfg.Cron.HistorySize}, nil
}

func mapExecutorTimeout(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationField("cron.executor_timeout", cfg.Cron.ExecutorTimeout)
}

func mapLogConfig(cfg *config.Config) logx.Config {
	chatID := cfg.Logging.Telegram.ChatID
	if chatID == 0 {
		chatID = cfg.Telegram.DefaultChatID
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     chatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapAlertsConfig(cfg *config.Config) (notifier.Config, error) {
	window, err := config.DurationOr("alerts.dedup_window", cfg.Alerts.DedupWindow, 10*time.Minute)
	if err != nil {
		return notifier.Config{}, err
	}
	chatID := cfg.Alerts.ChatID
	if chatID == 0 {
		chatID = cfg.Telegram.DefaultChatID
	}
	return notifier.Config{
		Enabled:     cfg.Alerts.Enabled,
		ChatID:      chatID,
		ThreadID:    cfg.Alerts.ThreadID,
		DedupWindow: window,
		RatePerSec:  cfg.Alerts.RatePerSec,
	}, nil
}

func mapTelegramConfig(cfg *config.Config) telegram.Config {
	return telegram.Config{
		Token:         strings.TrimSpace(cfg.Telegram.Token),
		DefaultChatID: cfg.Telegram.DefaultChatID,
		RatePerSec:    cfg.Telegram.RatePerSec,
	}
}
