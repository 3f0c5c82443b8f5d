package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("500ms", "10s", "1m"). Unknown keys are
// rejected so typos surface at load time, including on hot reload.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Cron     CronConfig     `json:"cron"`
	Storage  StorageConfig  `json:"storage"`
	Telegram TelegramConfig `json:"telegram"`
	Alerts   AlertsConfig   `json:"alerts,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram mirrors warn+ log lines into a chat.
// ChatID falls back to telegram.default_chat_id.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// CronConfig controls the scheduler.
//
// Enabled is a pointer so an omitted key (default true) differs from an
// explicit false.
//
// Defaults:
//   - idle_interval: "60s"
//   - executor_timeout: "0s" (none)
//   - history_size: 200
type CronConfig struct {
	Enabled         *bool  `json:"enabled,omitempty"`
	StorePath       string `json:"store_path,omitempty"`
	IdleInterval    string `json:"idle_interval,omitempty"`
	ExecutorTimeout string `json:"executor_timeout,omitempty"`
	HistorySize     int    `json:"history_size,omitempty"`
}

// IsEnabled reports cron.enabled, defaulting to true.
func (c CronConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// StorageConfig selects the job store backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/cronbot.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type TelegramConfig struct {
	Token         string `json:"token"`
	DefaultChatID int64  `json:"default_chat_id,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
}

// AlertsConfig sends job failures and store errors to a chat.
type AlertsConfig struct {
	Enabled     bool   `json:"enabled"`
	ChatID      int64  `json:"chat_id,omitempty"`
	ThreadID    int    `json:"thread_id,omitempty"`
	DedupWindow string `json:"dedup_window,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
}
