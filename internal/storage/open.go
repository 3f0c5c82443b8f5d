package storage

import (
	"errors"
	"strings"

	logx "cronbot/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file", "json":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func newestFirst(recs []RunRecord, jobID string, limit int) []RunRecord {
	out := make([]RunRecord, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		if jobID != "" && recs[i].JobID != jobID {
			continue
		}
		out = append(out, recs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
