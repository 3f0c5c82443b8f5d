package config

import (
	"errors"
	"fmt"
	"strings"

	logx "cronbot/pkg/logx"
)

// Validate checks cross-field constraints that strict decoding cannot express.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
	}
	if lvl := strings.TrimSpace(cfg.Logging.Telegram.MinLevel); lvl != "" && !logx.ValidLevel(lvl) {
		errs = append(errs, fmt.Errorf("logging.telegram.min_level: unknown level %q", lvl))
	}
	if cfg.Logging.Telegram.Enabled {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			errs = append(errs, errors.New("logging.telegram: telegram.token is required"))
		}
		if cfg.Logging.Telegram.ChatID == 0 && cfg.Telegram.DefaultChatID == 0 {
			errs = append(errs, errors.New("logging.telegram.chat_id: required (or set telegram.default_chat_id)"))
		}
	}

	for path, raw := range map[string]string{
		"cron.idle_interval":    cfg.Cron.IdleInterval,
		"cron.executor_timeout": cfg.Cron.ExecutorTimeout,
		"storage.busy_timeout":  cfg.Storage.BusyTimeout,
		"alerts.dedup_window":   cfg.Alerts.DedupWindow,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Cron.HistorySize < 0 {
		errs = append(errs, errors.New("cron.history_size: must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "json", "sqlite", "sqlite3", "memory", "mem":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}

	if cfg.Telegram.RatePerSec < 0 || cfg.Logging.Telegram.RatePerSec < 0 || cfg.Alerts.RatePerSec < 0 {
		errs = append(errs, errors.New("rate_per_sec: must be >= 0"))
	}
	if cfg.Alerts.Enabled {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			errs = append(errs, errors.New("alerts: telegram.token is required"))
		}
		if cfg.Alerts.ChatID == 0 && cfg.Telegram.DefaultChatID == 0 {
			errs = append(errs, errors.New("alerts.chat_id: required (or set telegram.default_chat_id)"))
		}
	}
	return errors.Join(errs...)
}
