package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"triagem/internal/classifier"
	"triagem/internal/domain"
	"triagem/internal/markdown"
	"triagem/internal/triage"
)

const (
	maxCustomLabels     = 20
	maxCustomLabelRunes = 64
	statsWindow         = 24 * time.Hour
)

const welcomeText = `🤖 *Bem\-vindo ao Triagem\!*

Eu resumo e classifico tickets de atendimento\. Você pode:

– Enviar o texto de um ticket para receber resumo e categoria
– Enviar um arquivo \.csv com a legenda ` + "`<coluna> [separador]`" + ` para triagem em lote
– Definir suas categorias com /categories
– Ver a contagem por categoria das últimas 24h com /stats
– Seguir feeds RSS / Atom / JSON de tickets com /follow
– Ver os feeds seguidos com /list e deixar de seguir pela lista
– Receber o resumo de 24h dos feeds com /digest
– Receber o relatório diário automaticamente \(padrão \- 00:00 UTC\)
– Configurar o horário do relatório com /settings`

const settingsText = `*⚙️ Configurações*

Horário UTC atual: %s\.

Horário do relatório diário \(UTC\): %s\.

Escolha outro horário abaixo:`

const categoriesUsageText = `Use ` + "`/categories A, B, C`" + ` para definir ou ` + "`/categories padrão`" + ` para voltar às categorias padrão\.`

func (b *Bot) handleStartCommand(
	ctx context.Context,
	args string,
	chatID int64,
	userID int64,
) error {
	if feedIDStr, ok := strings.CutPrefix(strings.TrimSpace(args), "unfollow_"); ok {
		return b.handleUnfollowDeepLink(ctx, strings.TrimSpace(feedIDStr), chatID, userID)
	}

	return b.sendMessageWithKeyboard(chatID, welcomeText, b.menuKeyboard)
}

func (b *Bot) handleUnfollowDeepLink(
	ctx context.Context,
	feedIDStr string,
	chatID int64,
	userID int64,
) error {
	feedID, err := strconv.ParseInt(feedIDStr, 10, 64)
	if err != nil {
		return b.failWithKeyboard(chatID, fmt.Errorf("parse feedID: %w", err))
	}

	if err = b.store.RemoveFeed(ctx, userID, feedID); err != nil {
		return b.failWithKeyboard(chatID, fmt.Errorf("remove feed: %w", err))
	}

	if err = b.sendMessageWithKeyboard(chatID, "✅ Feed removido\\.", b.returnKeyboard); err != nil {
		return fmt.Errorf("send message with keyboard: %w", err)
	}

	return b.handleListCommand(ctx, chatID, userID)
}

func (b *Bot) handleMenuCommand(chatID int64) error {
	return b.sendMessageWithKeyboard(chatID, "❔ *Escolha uma opção:*", b.menuKeyboard)
}

func (b *Bot) handleCategoriesCommand(
	ctx context.Context,
	args string,
	chatID int64,
	userID int64,
) error {
	settings, err := b.store.GetUserSettingsWithDefault(ctx, userID)
	if err != nil {
		return b.failWithKeyboard(chatID, fmt.Errorf("get user settings with default: %w", err))
	}

	args = strings.TrimSpace(args)

	switch {
	case args == "":
		return b.sendMessageWithKeyboard(chatID, formatCategories(settings.Labels), b.returnKeyboard)
	case isResetArg(args):
		settings.Labels = nil
	default:
		labels := triage.ParseLabels(args)

		if msg := validateLabels(labels); msg != "" {
			return b.sendMessageWithKeyboard(chatID, "✖️ "+markdown.EscapeV2(msg), b.returnKeyboard)
		}

		settings.Labels = labels
	}

	if err = b.store.UpsertUserSettings(ctx, settings); err != nil {
		return b.failWithKeyboard(chatID, fmt.Errorf("upsert user settings: %w", err))
	}

	return b.sendMessageWithKeyboard(chatID, "✅ Categorias atualizadas\\.\n\n"+formatCategories(settings.Labels), b.returnKeyboard)
}

func isResetArg(args string) bool {
	switch strings.ToLower(args) {
	case "padrão", "padrao", "reset", "default":
		return true
	default:
		return false
	}
}

func validateLabels(labels []string) string {
	if len(labels) == 0 {
		return "Informe ao menos uma categoria."
	}

	if len(labels) > maxCustomLabels {
		return fmt.Sprintf("Informe no máximo %d categorias.", maxCustomLabels)
	}

	for _, label := range labels {
		if utf8.RuneCountInString(label) > maxCustomLabelRunes {
			return fmt.Sprintf("Categoria maior que %d caracteres: %s", maxCustomLabelRunes, label)
		}
	}

	return ""
}

func formatCategories(labels []string) string {
	var b strings.Builder

	title := "🏷 *Suas categorias:*"
	if len(labels) == 0 {
		title = "🏷 *Categorias padrão:*"
		labels = classifier.DefaultLabels()
	}

	b.WriteString(title)
	b.WriteString("\n\n")

	for _, label := range labels {
		fmt.Fprintf(&b, "– %s\n", markdown.EscapeV2(label))
	}

	b.WriteString("\n")
	b.WriteString(categoriesUsageText)

	return b.String()
}

func (b *Bot) handleStatsCommand(ctx context.Context, chatID int64, userID int64) error {
	stats, err := b.store.GetUserLabelStats(ctx, userID, time.Now().Add(-statsWindow))
	if err != nil {
		return b.failWithKeyboard(chatID, fmt.Errorf("get user label stats: %w", err))
	}

	return b.sendMessageWithKeyboard(chatID, formatStats(stats), b.returnKeyboard)
}

func (b *Bot) handleFollowCommand(
	ctx context.Context,
	args string,
	chatID int64,
	userID int64,
) error {
	feeds, err := b.fetcher.FindValidFeeds(ctx, args)

	if len(feeds) == 0 {
		var errs []error
		if err != nil {
			errs = append(errs, fmt.Errorf("find valid feeds: %w", err))
		}

		sendErr := b.sendMessageWithKeyboard(
			chatID,
			"✖️ Nenhum feed válido encontrado\\. Use `/follow https://…`\\.",
			b.returnKeyboard,
		)
		if sendErr != nil {
			errs = append(errs, fmt.Errorf("send message with keyboard: %w", sendErr))
		}

		return errors.Join(errs...)
	}

	var errs []error
	if err != nil {
		errs = append(errs, fmt.Errorf("find valid feeds: %w", err))
	}

	added := 0
	for _, feed := range feeds {
		if err = b.store.AddFeed(ctx, userID, feed.URL, feed.Title); err != nil {
			errs = append(errs, fmt.Errorf("add feed: %w", err))
		} else {
			added++
		}
	}

	text := "✅ Sucesso\\."

	switch {
	case added == 0:
		text = "❌ Falhou\\."
	case len(errs) > 0:
		text = fmt.Sprintf("⚠️ Sucesso parcial \\(%d adicionados\\)\\.", added)
	}

	if err = b.sendMessageWithKeyboard(chatID, text, b.returnKeyboard); err != nil {
		errs = append(errs, fmt.Errorf("send message with keyboard: %w", err))
	}

	return errors.Join(errs...)
}

func (b *Bot) handleListCommand(ctx context.Context, chatID int64, userID int64) error {
	feeds, err := b.store.GetUserFeeds(ctx, userID)

	if len(feeds) == 0 {
		var errs []error
		if err != nil {
			errs = append(errs, fmt.Errorf("get user feeds: %w", err))
		}

		sendErr := b.sendMessageWithKeyboard(chatID, "✖️ Nenhum feed seguido\\.", b.returnKeyboard)
		if sendErr != nil {
			errs = append(errs, fmt.Errorf("send message with keyboard: %w", sendErr))
		}

		return errors.Join(errs...)
	}

	var errs []error
	if err != nil {
		errs = append(errs, fmt.Errorf("get user feeds: %w", err))
	}

	botUserName := ""
	if botInfo, botInfoErr := b.api.GetMe(); botInfoErr != nil {
		errs = append(errs, fmt.Errorf("get bot info: %w", botInfoErr))
	} else {
		botUserName = botInfo.UserName
	}

	if err = b.sendMessageWithKeyboard(chatID, formatFeedList(feeds, botUserName), b.returnKeyboard); err != nil {
		errs = append(errs, fmt.Errorf("send message with keyboard: %w", err))
	}

	return errors.Join(errs...)
}

func formatFeedList(feeds []domain.UserFeed, botUserName string) string {
	var message strings.Builder
	fmt.Fprintf(&message, "🔍 *%d feeds seguidos:*\n\n", len(feeds))

	for i, f := range feeds {
		url := strings.TrimSpace(f.URL)
		if url == "" {
			continue
		}

		title := strings.TrimSpace(f.Title)
		if title == "" {
			title = url
		}

		if botUserName != "" {
			fmt.Fprintf(&message,
				"%d\\. [%s](%s) \\[[deixar de seguir](https://t\\.me/%s?start=unfollow_%d)\\]\n",
				i+1,
				markdown.EscapeV2(title),
				url,
				botUserName,
				f.ID,
			)
		} else {
			fmt.Fprintf(&message, "%d\\. [%s](%s)\n", i+1, markdown.EscapeV2(title), url)
		}
	}

	return message.String()
}

func (b *Bot) handleDigestCommand(ctx context.Context, chatID int64, userID int64) error {
	userItems, err := b.fetcher.FetchUserFeeds(ctx, userID)

	if len(userItems) == 0 {
		var errs []error
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch user feeds: %w", err))
		}

		sendErr := b.sendMessageWithKeyboard(chatID, "✖️ Nenhum ticket novo nos feeds\\.", b.returnKeyboard)
		if sendErr != nil {
			errs = append(errs, fmt.Errorf("send message with keyboard: %w", sendErr))
		}

		return errors.Join(errs...)
	}

	var errs []error
	if err != nil {
		errs = append(errs, fmt.Errorf("fetch user feeds: %w", err))
	}

	for _, items := range userItems {
		if err = b.SendItems(ctx, chatID, items); err != nil {
			errs = append(errs, fmt.Errorf("send items: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (b *Bot) handleSettingsCommand(ctx context.Context, chatID int64, userID int64) error {
	settings, err := b.store.GetUserSettingsWithDefault(ctx, userID)
	if err != nil {
		return b.failWithKeyboard(chatID, fmt.Errorf("get user settings with default: %w", err))
	}

	currentUTC := time.Now().UTC().Format("15:04")
	hourUTCStr := fmt.Sprintf("%02d:00", settings.ReportHourUTC)

	if err = b.sendMessageWithKeyboard(
		chatID,
		fmt.Sprintf(settingsText, currentUTC, hourUTCStr),
		b.settingsReportHourUTCKeyboard,
	); err != nil {
		return fmt.Errorf("send message with keyboard: %w", err)
	}

	return nil
}
