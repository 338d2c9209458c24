package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"triagem/internal/markdown"
	"triagem/internal/triage"
)

// Telegram bots can download files up to 20 MB.
const maxDocumentSize = 20 << 20

const csvUsageText = `📎 Envie um arquivo \.csv com a legenda:

` + "`<coluna> [separador]`" + `

Exemplo: ` + "`descricao ;`" + `\. O separador padrão é ` + "`;`" + `\.`

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) error {
	action := tgbotapi.ChatTyping
	if message.Document != nil {
		action = tgbotapi.ChatUploadDocument
	}

	return b.withSpinner(ctx, message.Chat.ID, action, func() error {
		chatID := message.Chat.ID
		userID := message.From.ID

		if message.Document != nil {
			return b.handleDocument(ctx, message)
		}

		command, args := splitCommand(message.Text)

		switch command {
		case "":
			if args == "" {
				return b.sendMessageWithKeyboard(chatID, "✖️ Envie o texto do ticket\\.", b.returnKeyboard)
			}
			return b.handleTicketText(ctx, args, chatID, userID)
		case "/start":
			return b.handleStartCommand(ctx, args, chatID, userID)
		case "/menu":
			return b.handleMenuCommand(chatID)
		case "/categories":
			return b.handleCategoriesCommand(ctx, args, chatID, userID)
		case "/stats":
			return b.handleStatsCommand(ctx, chatID, userID)
		case "/follow":
			return b.handleFollowCommand(ctx, args, chatID, userID)
		case "/list":
			return b.handleListCommand(ctx, chatID, userID)
		case "/digest":
			return b.handleDigestCommand(ctx, chatID, userID)
		case "/settings":
			return b.handleSettingsCommand(ctx, chatID, userID)
		default:
			return b.sendMessageWithKeyboard(chatID, "✖️ Comando desconhecido\\.", b.menuKeyboard)
		}
	})
}

// splitCommand separates a leading bot command from its arguments. Text that
// is not a command is returned as args with an empty command.
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}

	command, args := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		command, args = text[:i], strings.TrimSpace(text[i:])
	}

	command, _, _ = strings.Cut(command, "@")

	return strings.ToLower(command), args
}

func (b *Bot) handleTicketText(ctx context.Context, text string, chatID int64, userID int64) error {
	ticket := b.processor.ProcessText(ctx, text, b.userLabels(ctx, userID))
	ticket.UserID = userID

	var errs []error

	if _, err := b.store.AddTicket(ctx, &ticket); err != nil {
		errs = append(errs, fmt.Errorf("add ticket: %w", err))
	}

	if err := b.sendMessageWithKeyboard(chatID, formatTicket(ticket), b.returnKeyboard); err != nil {
		errs = append(errs, fmt.Errorf("send message with keyboard: %w", err))
	}

	return errors.Join(errs...)
}

func (b *Bot) handleDocument(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	userID := message.From.ID
	doc := message.Document

	if !isCSVDocument(doc) {
		return b.sendMessageWithKeyboard(chatID, csvUsageText, b.returnKeyboard)
	}

	if doc.FileSize > maxDocumentSize {
		return b.sendMessageWithKeyboard(chatID, "✖️ Arquivo maior que 20 MB\\.", b.returnKeyboard)
	}

	column, separator := parseCaption(message.Caption)
	if column == "" {
		return b.sendMessageWithKeyboard(chatID, csvUsageText, b.returnKeyboard)
	}

	data, err := b.downloadFile(ctx, doc.FileID)
	if err != nil {
		return b.failWithKeyboard(chatID, fmt.Errorf("download file: %w", err))
	}

	result, err := b.processor.ProcessCSV(ctx, data, triage.BatchRequest{
		Column:    column,
		Labels:    b.userLabels(ctx, userID),
		Separator: separator,
	})
	if errors.Is(err, triage.ErrColumnNotFound) || errors.Is(err, triage.ErrEmptyCSV) {
		b.log.WarnContext(ctx, "Failed to process CSV",
			"error", err,
			"chatID", chatID,
			"userID", userID,
			"fileName", doc.FileName)

		return b.sendMessageWithKeyboard(chatID, "✖️ "+markdown.EscapeV2(err.Error()), b.returnKeyboard)
	}
	if err != nil {
		return b.failWithKeyboard(chatID, fmt.Errorf("process csv: %w", err))
	}

	for i := range result.Tickets {
		result.Tickets[i].UserID = userID
	}

	var errs []error

	if err = b.store.AddTickets(ctx, result.Tickets); err != nil {
		errs = append(errs, fmt.Errorf("add tickets: %w", err))
	}

	if err = b.sendMessageWithKeyboard(chatID, formatBatch(result), nil); err != nil {
		errs = append(errs, fmt.Errorf("send message with keyboard: %w", err))
	}

	if err = b.sendDocument(chatID, result.OutputPath, b.returnKeyboard); err != nil {
		errs = append(errs, fmt.Errorf("send document: %w", err))
	}

	return errors.Join(errs...)
}

func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	fileURL, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			b.log.ErrorContext(ctx, "Failed to close response body",
				"error", err,
				"operation", "downloadFile")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("do request: unexpected status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if len(data) > maxDocumentSize {
		return nil, errors.New("file is too large")
	}

	return data, nil
}

// userLabels returns the user's custom categories, nil meaning defaults.
func (b *Bot) userLabels(ctx context.Context, userID int64) []string {
	settings, err := b.store.GetUserSettingsWithDefault(ctx, userID)
	if err != nil {
		b.log.ErrorContext(ctx, "Failed to get user settings so default categories will be used",
			"error", err,
			"userID", userID)

		return nil
	}

	if len(settings.Labels) == 0 {
		return nil
	}

	return settings.Labels
}

func isCSVDocument(doc *tgbotapi.Document) bool {
	if strings.HasSuffix(strings.ToLower(strings.TrimSpace(doc.FileName)), ".csv") {
		return true
	}

	switch strings.ToLower(doc.MimeType) {
	case "text/csv", "text/comma-separated-values", "application/csv":
		return true
	default:
		return false
	}
}

// parseCaption reads "<column> [separator]". A trailing single punctuation
// rune, or the word "tab", is the separator; everything before it is the
// column name.
func parseCaption(caption string) (string, string) {
	fields := strings.Fields(caption)
	if len(fields) == 0 {
		return "", ""
	}

	last := fields[len(fields)-1]
	separator := ""

	switch {
	case strings.EqualFold(last, "tab"):
		separator = "\t"
	case utf8.RuneCountInString(last) == 1:
		r, _ := utf8.DecodeRuneInString(last)
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			separator = last
		}
	}

	if separator != "" {
		if len(fields) == 1 {
			return "", separator
		}
		fields = fields[:len(fields)-1]
	}

	return strings.Join(fields, " "), separator
}

func (b *Bot) failWithKeyboard(chatID int64, err error) error {
	errs := []error{err}

	if sendErr := b.sendMessageWithKeyboard(chatID, "❌ Falhou\\.", b.returnKeyboard); sendErr != nil {
		errs = append(errs, fmt.Errorf("send message with keyboard: %w", sendErr))
	}

	return errors.Join(errs...)
}
