package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	chatID := callback.Message.Chat.ID
	userID := callback.From.ID

	return b.withSpinner(ctx, chatID, tgbotapi.ChatTyping, func() error {
		data := strings.TrimSpace(callback.Data)

		switch data {
		case "menu":
			return b.withEmptyCallbackAnswer(callback, func() error {
				return b.handleMenuCommand(chatID)
			})
		case "menu_categories":
			return b.withEmptyCallbackAnswer(callback, func() error {
				return b.handleCategoriesCommand(ctx, "", chatID, userID)
			})
		case "menu_stats":
			return b.withEmptyCallbackAnswer(callback, func() error {
				return b.handleStatsCommand(ctx, chatID, userID)
			})
		case "menu_list":
			return b.withEmptyCallbackAnswer(callback, func() error {
				return b.handleListCommand(ctx, chatID, userID)
			})
		case "menu_digest":
			return b.withEmptyCallbackAnswer(callback, func() error {
				return b.handleDigestCommand(ctx, chatID, userID)
			})
		case "menu_settings":
			return b.withEmptyCallbackAnswer(callback, func() error {
				return b.handleSettingsCommand(ctx, chatID, userID)
			})
		}

		if hourUTCStr, ok := strings.CutPrefix(data, settingsReportHourUTCKeyboardCallbackPrefix); ok {
			return b.handleSettingsReportHourUTCQuery(ctx, hourUTCStr, callback)
		}

		return nil
	})
}

func (b *Bot) handleSettingsReportHourUTCQuery(
	ctx context.Context,
	hourUTCStr string,
	callback *tgbotapi.CallbackQuery,
) error {
	hourUTC, err := strconv.ParseInt(strings.TrimSpace(hourUTCStr), 10, 64)
	if err != nil {
		return b.errorCallbackAnswer(callback, fmt.Errorf("parse hourUTC: %w", err))
	}

	if hourUTC < 0 || hourUTC >= hoursPerDay {
		return b.errorCallbackAnswer(callback, fmt.Errorf("hourUTC out of range: %d", hourUTC))
	}

	settings, err := b.store.GetUserSettingsWithDefault(ctx, callback.From.ID)
	if err != nil {
		return b.errorCallbackAnswer(callback, fmt.Errorf("get user settings with default: %w", err))
	}

	settings.ReportHourUTC = hourUTC

	if err = b.store.UpsertUserSettings(ctx, settings); err != nil {
		return b.errorCallbackAnswer(callback, fmt.Errorf("upsert user settings: %w", err))
	}

	if _, err = b.rateLimiter.Request(tgbotapi.NewCallback(callback.ID, "✅ Configurações atualizadas.")); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	return b.handleSettingsCommand(ctx, callback.Message.Chat.ID, callback.From.ID)
}

func (b *Bot) withEmptyCallbackAnswer(
	callback *tgbotapi.CallbackQuery,
	fn func() error,
) error {
	var errs []error

	if _, err := b.rateLimiter.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		errs = append(errs, b.errorCallbackAnswer(callback, fmt.Errorf("send request: %w", err)))
	}

	if err := fn(); err != nil {
		errs = append(errs, fmt.Errorf("call fn: %w", err))
	}

	return errors.Join(errs...)
}

func (b *Bot) errorCallbackAnswer(
	callback *tgbotapi.CallbackQuery,
	err error,
) error {
	if _, sendErr := b.rateLimiter.Request(tgbotapi.NewCallback(callback.ID, "❌ Falhou.")); sendErr != nil {
		return errors.Join(err, fmt.Errorf("send request: %w", sendErr))
	}
	return err
}
