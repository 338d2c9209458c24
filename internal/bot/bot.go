package bot

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"triagem/internal/domain"
	"triagem/internal/ratelimiter"
	"triagem/internal/triage"
)

const (
	maxBackoffSeconds         = 60
	initialBackoffSeconds     = 3
	backoffGrowthFactor       = 2
	resetOffsetBackoffSeconds = 30
	updateProcessingTimeout   = 5 * time.Minute
	documentDownloadTimeout   = 60 * time.Second

	BotUpdateTimeout = 60
)

// Store is the part of the database the bot reads and writes.
type Store interface {
	AddTicket(ctx context.Context, ticket *domain.Ticket) (int64, error)
	AddTickets(ctx context.Context, tickets []domain.Ticket) error
	GetUserLabelStats(ctx context.Context, userID int64, since time.Time) ([]domain.LabelStat, error)
	AddFeed(ctx context.Context, userID int64, feedURL string, feedTitle string) error
	RemoveFeed(ctx context.Context, userID int64, feedID int64) error
	GetUserFeeds(ctx context.Context, userID int64) ([]domain.UserFeed, error)
	GetUserSettingsWithDefault(ctx context.Context, userID int64) (*domain.UserSettings, error)
	UpsertUserSettings(ctx context.Context, userSettings *domain.UserSettings) error
}

type Fetcher interface {
	FindValidFeeds(ctx context.Context, text string) ([]domain.Feed, error)
	FetchUserFeeds(ctx context.Context, userID int64) (map[int64][]domain.FeedItem, error)
}

type Processor interface {
	ProcessText(ctx context.Context, text string, labels []string) domain.Ticket
	ProcessCSV(ctx context.Context, data []byte, req triage.BatchRequest) (*triage.BatchResult, error)
}

type Bot struct {
	api                           *tgbotapi.BotAPI
	rateLimiter                   *ratelimiter.RateLimiter
	store                         Store
	fetcher                       Fetcher
	processor                     Processor
	httpClient                    *http.Client
	allowedUsers                  []int64
	returnKeyboard                [][]tgbotapi.InlineKeyboardButton
	settingsReportHourUTCKeyboard [][]tgbotapi.InlineKeyboardButton
	menuKeyboard                  [][]tgbotapi.InlineKeyboardButton
	log                           *slog.Logger
}

func New(
	token string,
	store Store,
	fetcher Fetcher,
	processor Processor,
	allowedUsers []int64,
	log *slog.Logger,
) (*Bot, error) {
	token = strings.TrimSpace(token)

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	return &Bot{
		api:                           api,
		rateLimiter:                   ratelimiter.New(api, log),
		store:                         store,
		fetcher:                       fetcher,
		processor:                     processor,
		httpClient:                    &http.Client{Timeout: documentDownloadTimeout},
		allowedUsers:                  allowedUsers,
		returnKeyboard:                getReturnKeyboard(),
		settingsReportHourUTCKeyboard: getSettingsReportHourUTCKeyboard(),
		menuKeyboard:                  getMenuKeyboard(),
		log:                           log,
	}, nil
}

func (b *Bot) Start(ctx context.Context) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = BotUpdateTimeout

	backoffSeconds := initialBackoffSeconds

	for {
		select {
		case <-ctx.Done():
			b.log.InfoContext(ctx, "Bot context is done",
				"error", ctx.Err())
			return
		default:
		}

		updates := b.api.GetUpdatesChan(updateConfig)
		updatesClosed := false

		for !updatesClosed {
			select {
			case <-ctx.Done():
				b.api.StopReceivingUpdates()
				b.log.InfoContext(ctx, "Bot context is done",
					"error", ctx.Err())
				return

			case update, ok := <-updates:
				if !ok {
					updatesClosed = true
					continue
				}
				updateConfig.Offset = update.UpdateID + 1

				b.handleUpdate(ctx, &update)
			}
		}

		if ctx.Err() != nil {
			return
		}

		b.log.WarnContext(ctx, "Update channel is closed, reconnecting...",
			"offset", updateConfig.Offset,
			"backoffSeconds", backoffSeconds)

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(backoffSeconds) * time.Second):
		}

		backoffSeconds = updateBackoffSeconds(backoffSeconds)

		if backoffSeconds >= resetOffsetBackoffSeconds {
			updateConfig.Offset = 0
		}
	}
}

func (b *Bot) Stop() {
	if b.rateLimiter != nil {
		b.rateLimiter.Stop()
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	updateCtx, cancel := context.WithTimeout(ctx, updateProcessingTimeout)
	defer cancel()

	switch {
	case update.Message != nil && update.Message.From != nil:
		chatID, chatType := chatContext(update.Message.Chat)

		userID := update.Message.From.ID
		if !b.userAllowed(userID) {
			b.log.DebugContext(updateCtx, "User is not allowed",
				"userID", userID,
				"chatID", chatID,
				"username", update.Message.From.UserName,
				"chatType", chatType)

			return
		}

		if err := b.handleMessage(updateCtx, update.Message); err != nil {
			b.log.ErrorContext(updateCtx, "Failed to handle message",
				"error", err,
				"chatID", chatID,
				"userID", userID,
				"chatType", chatType,
				"messageID", update.Message.MessageID)
		}

	case update.CallbackQuery != nil && update.CallbackQuery.From != nil && update.CallbackQuery.Message != nil:
		chatID := callbackChatID(update.CallbackQuery)

		if !b.userAllowed(update.CallbackQuery.From.ID) {
			b.log.DebugContext(updateCtx, "User is not allowed",
				"userID", update.CallbackQuery.From.ID,
				"chatID", chatID,
				"username", update.CallbackQuery.From.UserName,
				"data", update.CallbackQuery.Data)

			return
		}

		if err := b.handleCallbackQuery(updateCtx, update.CallbackQuery); err != nil {
			b.log.ErrorContext(updateCtx, "Failed to handle callback query",
				"error", err,
				"chatID", chatID,
				"userID", update.CallbackQuery.From.ID,
				"data", update.CallbackQuery.Data,
				"messageID", callbackMessageID(update.CallbackQuery))
		}
	}
}

// userAllowed treats an empty allow list as open access.
func (b *Bot) userAllowed(userID int64) bool {
	return len(b.allowedUsers) == 0 || slices.Contains(b.allowedUsers, userID)
}

func chatContext(chat *tgbotapi.Chat) (int64, string) {
	if chat == nil {
		return 0, ""
	}

	return chat.ID, chat.Type
}

func callbackChatID(cb *tgbotapi.CallbackQuery) int64 {
	if cb != nil && cb.Message != nil && cb.Message.Chat != nil {
		return cb.Message.Chat.ID
	}

	return 0
}

func callbackMessageID(cb *tgbotapi.CallbackQuery) int {
	if cb != nil && cb.Message != nil {
		return cb.Message.MessageID
	}

	return 0
}

func updateBackoffSeconds(backoffSeconds int) int {
	if backoffSeconds < maxBackoffSeconds {
		backoffSeconds *= backoffGrowthFactor
		if backoffSeconds > maxBackoffSeconds {
			backoffSeconds = maxBackoffSeconds
		}
	}
	return backoffSeconds
}
