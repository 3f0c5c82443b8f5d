package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"cronbot/internal/cron"
)

// Sender is the subset of Bot the executor needs.
type Sender interface {
	SendText(ctx context.Context, chatID int64, threadID int, text string) error
}

// Executor sends a job's message to the chat named by payload.to
// ("<chat_id>" or "<chat_id>:<thread_id>"), or to the default chat.
type Executor struct {
	sender      Sender
	defaultChat int64
}

func NewExecutor(sender Sender, defaultChatID int64) *Executor {
	return &Executor{sender: sender, defaultChat: defaultChatID}
}

func (e *Executor) Execute(ctx context.Context, job cron.Job) error {
	chatID, threadID, err := ParseTarget(job.Payload.To, e.defaultChat)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(job.Payload.Message)
	if text == "" {
		text = job.Name
	}
	if err := e.sender.SendText(ctx, chatID, threadID, text); err != nil {
		return fmt.Errorf("telegram deliver to %d: %w", chatID, err)
	}
	return nil
}

// ParseTarget parses "<chat_id>[:<thread_id>]". An empty target resolves to def.
func ParseTarget(to string, def int64) (chatID int64, threadID int, err error) {
	to = strings.TrimSpace(to)
	if to == "" {
		if def == 0 {
			return 0, 0, fmt.Errorf("no target chat: payload.to is empty and no default chat is configured")
		}
		return def, 0, nil
	}
	chatPart, threadPart, hasThread := strings.Cut(to, ":")
	chatID, err = strconv.ParseInt(strings.TrimSpace(chatPart), 10, 64)
	if err != nil || chatID == 0 {
		return 0, 0, fmt.Errorf("invalid chat id %q", chatPart)
	}
	if hasThread {
		threadID, err = strconv.Atoi(strings.TrimSpace(threadPart))
		if err != nil || threadID < 0 {
			return 0, 0, fmt.Errorf("invalid thread id %q", threadPart)
		}
	}
	return chatID, threadID, nil
}
