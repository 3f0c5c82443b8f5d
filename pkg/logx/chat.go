package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	chatMaxLen   = 3500
	chatValueLen = 600
)

// chatWorker drains the queue into the sender until ctx ends.
func (s *Service) chatWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.chatQueue:
			s.mu.Lock()
			sender := s.sender
			s.mu.Unlock()
			if sender != nil {
				_ = sender.SendText(ctx, it.chatID, it.threadID, it.msg)
			}
		}
	}
}

// chatWriter is the zerolog.LevelWriter behind the chat sink. It never blocks:
// lines over the rate limit or past a full queue are dropped.
type chatWriter struct{ svc *Service }

func (w *chatWriter) Write(p []byte) (int, error) { return w.WriteLevel(zerolog.InfoLevel, p) }

func (w *chatWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	if s == nil {
		return len(p), nil
	}
	s.mu.Lock()
	item := chatItem{chatID: s.chatID, threadID: s.threadID}
	lim, minLevel, ready := s.limiter, s.minLevel, s.sender != nil
	s.mu.Unlock()

	if !ready || item.chatID == 0 || lim == nil || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	if item.msg = formatChatLine(p); item.msg == "" {
		return len(p), nil
	}
	select {
	case s.chatQueue <- item:
	default:
	}
	return len(p), nil
}

// formatChatLine renders a zerolog JSON line for a chat:
//
//	[WARN] job.failed · backup (ab12cd34)
//	- err=boom
//
// The job and name keys move into the headline; time and caller are dropped.
func formatChatLine(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return truncate(raw, chatMaxLen)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m["message"].(string)
	b.WriteString(msg)

	job, _ := m["job"].(string)
	name, _ := m["name"].(string)
	switch {
	case job != "" && name != "":
		fmt.Fprintf(&b, " · %s (%s)", name, job)
	case job != "":
		b.WriteString(" · " + job)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message", zerolog.CallerFieldName:
			continue
		case "job", "name":
			if job != "" {
				continue
			}
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, truncate(fmt.Sprint(m[k]), chatValueLen))
	}
	return truncate(b.String(), chatMaxLen)
}

// truncate cuts s to at most maxN bytes without splitting a rune, marking the cut with "...".
func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	cut := maxN
	if maxN >= 10 {
		cut = maxN - 3
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if maxN < 10 {
		return s[:cut]
	}
	return s[:cut] + "..."
}
