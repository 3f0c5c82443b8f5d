package config

import (
	"strings"

	logx "cronbot/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and log fields that
// describe the new values. Secrets (the bot token) are reported only as set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}

	oc, nc := oldCfg.Cron, newCfg.Cron
	if oc.IsEnabled() != nc.IsEnabled() ||
		strings.TrimSpace(oc.StorePath) != strings.TrimSpace(nc.StorePath) ||
		strings.TrimSpace(oc.IdleInterval) != strings.TrimSpace(nc.IdleInterval) ||
		strings.TrimSpace(oc.ExecutorTimeout) != strings.TrimSpace(nc.ExecutorTimeout) ||
		oc.HistorySize != nc.HistorySize {
		changed = append(changed, "cron")
		attrs = append(attrs,
			logx.Bool("cron.enabled", nc.IsEnabled()),
			logx.String("cron.idle_interval", strings.TrimSpace(nc.IdleInterval)),
			logx.String("cron.executor_timeout", strings.TrimSpace(nc.ExecutorTimeout)),
			logx.Int("cron.history_size", nc.HistorySize),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.DefaultChatID != nt.DefaultChatID || ot.RatePerSec != nt.RatePerSec {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(nt.Token) != ""),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Int64("telegram.default_chat_id", nt.DefaultChatID),
		)
	}

	if oldCfg.Alerts != newCfg.Alerts {
		changed = append(changed, "alerts")
		attrs = append(attrs,
			logx.Bool("alerts.enabled", newCfg.Alerts.Enabled),
			logx.String("alerts.dedup_window", newCfg.Alerts.DedupWindow),
		)
	}
	return changed, attrs
}

// RestartRequired reports changes that only take effect after a restart.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	if strings.TrimSpace(oldCfg.Cron.StorePath) != strings.TrimSpace(newCfg.Cron.StorePath) {
		out = append(out, "cron.store_path")
	}
	if oldCfg.Cron.IsEnabled() != newCfg.Cron.IsEnabled() {
		out = append(out, "cron.enabled")
	}
	if oldCfg.Telegram.Token != newCfg.Telegram.Token {
		out = append(out, "telegram.token")
	}
	return out
}
