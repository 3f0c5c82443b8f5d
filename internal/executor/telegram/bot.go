// Package telegram delivers job messages through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	logx "cronbot/pkg/logx"
)

const textLimit = 4000

type Config struct {
	Token         string
	DefaultChatID int64
	// RatePerSec caps outgoing messages. Default 1.
	RatePerSec int
}

// Bot is a send-only Telegram client. It implements logx.Sender.
type Bot struct {
	bot     *tele.Bot
	limiter *rate.Limiter
	log     logx.Logger
}

// NewBot validates the token against the API (getMe).
func NewBot(cfg Config, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return &Bot{bot: b, limiter: rate.NewLimiter(rate.Limit(rps), rps), log: log}, nil
}

// SendText sends text, split into API-sized chunks, to a chat or forum thread.
func (b *Bot) SendText(ctx context.Context, chatID int64, threadID int, text string) error {
	chat := &tele.Chat{ID: chatID}
	for _, chunk := range splitText(text, textLimit) {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := b.bot.Send(chat, chunk, &tele.SendOptions{
			ThreadID:              threadID,
			DisableWebPagePreview: true,
		})
		if err != nil {
			b.log.Debug("telegram send failed", logx.Int64("chat_id", chatID), logx.Err(err))
			return err
		}
	}
	return nil
}

// splitText cuts s into chunks of at most limit runes, preferring newline
// boundaries that leave chunks at least a third full.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i-start >= limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
