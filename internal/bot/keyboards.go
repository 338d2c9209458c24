package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	hoursPerDay                                 = 24
	settingsReportHourUTCKeyboardRowSize        = 6
	settingsReportHourUTCKeyboardCallbackPrefix = "settings_report_hour_utc_"
)

func (b *Bot) sendMessageWithKeyboard(
	chatID int64,
	text string,
	keyboard [][]tgbotapi.InlineKeyboardButton,
) error {
	normalizedText := strings.ToValidUTF8(text, "?")
	if normalizedText != text {
		b.log.Warn("Message text had invalid UTF-8 and was normalized",
			"chatID", chatID,
			"originalLen", len(text),
			"normalizedLen", len(normalizedText))
	}

	message := tgbotapi.NewMessage(chatID, normalizedText)

	// See https://core.telegram.org/bots/api#markdownv2-style.
	message.ParseMode = tgbotapi.ModeMarkdownV2

	message.DisableWebPagePreview = true
	if len(keyboard) > 0 {
		message.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	}

	_, err := b.rateLimiter.Send(message)
	return err
}

func (b *Bot) sendDocument(
	chatID int64,
	path string,
	keyboard [][]tgbotapi.InlineKeyboardButton,
) error {
	document := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	if len(keyboard) > 0 {
		document.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	}

	_, err := b.rateLimiter.Send(document)
	return err
}

func getReturnKeyboard() [][]tgbotapi.InlineKeyboardButton {
	return [][]tgbotapi.InlineKeyboardButton{
		{tgbotapi.NewInlineKeyboardButtonData("⬅️ Voltar ao menu", "menu")},
	}
}

func getMenuKeyboard() [][]tgbotapi.InlineKeyboardButton {
	return [][]tgbotapi.InlineKeyboardButton{
		{
			tgbotapi.NewInlineKeyboardButtonData("🏷 Categorias", "menu_categories"),
			tgbotapi.NewInlineKeyboardButtonData("📊 Estatísticas 24h", "menu_stats"),
		},
		{
			tgbotapi.NewInlineKeyboardButtonData("📄 Feeds", "menu_list"),
			tgbotapi.NewInlineKeyboardButtonData("🗂 Resumo 24h", "menu_digest"),
		},
		{
			tgbotapi.NewInlineKeyboardButtonData("⚙️ Configurações", "menu_settings"),
		},
	}
}

func getSettingsReportHourUTCKeyboard() [][]tgbotapi.InlineKeyboardButton {
	var keyboard [][]tgbotapi.InlineKeyboardButton

	for i := 0; i < hoursPerDay; i += settingsReportHourUTCKeyboardRowSize {
		var row []tgbotapi.InlineKeyboardButton

		for j := i; j < i+settingsReportHourUTCKeyboardRowSize && j < hoursPerDay; j++ {
			hour := fmt.Sprintf("%02d", j)
			row = append(
				row,
				tgbotapi.NewInlineKeyboardButtonData(hour, settingsReportHourUTCKeyboardCallbackPrefix+hour),
			)
		}

		keyboard = append(keyboard, row)
	}

	keyboard = append(keyboard, getReturnKeyboard()...)

	return keyboard
}
