package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const sendSpinnerInterval = 4 * time.Second

func (b *Bot) sendChatAction(ctx context.Context, chatID int64, action string) {
	if _, err := b.rateLimiter.Request(tgbotapi.NewChatAction(chatID, action)); err != nil {
		b.log.ErrorContext(ctx, "Failed to send chat action",
			"error", err,
			"chatID", chatID,
			"action", action)
	}
}

// withSpinner repeats the chat action until fn returns. Telegram clears an
// action after about five seconds.
func (b *Bot) withSpinner(ctx context.Context, chatID int64, action string, fn func() error) error {
	spinnerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		b.sendChatAction(spinnerCtx, chatID, action)

		t := time.NewTicker(sendSpinnerInterval)
		defer t.Stop()

		for {
			select {
			case <-spinnerCtx.Done():
				return
			case <-t.C:
				b.sendChatAction(spinnerCtx, chatID, action)
			}
		}
	}()

	return fn()
}
