package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"triagem/internal/classifier"
	"triagem/internal/domain"
	"triagem/internal/feed"
	"triagem/internal/markdown"
	"triagem/internal/triage"
)

const (
	telegramMessageMaxLength = 4096
	maxRankedScores          = 5
)

func (b *Bot) SendItems(ctx context.Context, chatID int64, items []domain.FeedItem) error {
	if len(items) == 0 {
		return nil
	}

	var errs []error

	for _, message := range feed.FormatItemsAsMessages(ctx, items, b.log) {
		if err := b.sendMessageWithKeyboard(chatID, message, b.returnKeyboard); err != nil {
			errs = append(errs, fmt.Errorf("send message with keyboard: %w", err))
		}
	}

	return errors.Join(errs...)
}

// SendReport sends the per category ticket counts of the last 24 hours.
func (b *Bot) SendReport(chatID int64, stats []domain.LabelStat) error {
	if len(stats) == 0 {
		return nil
	}

	return b.sendMessageWithKeyboard(chatID, formatStats(stats), b.returnKeyboard)
}

func formatTicket(ticket domain.Ticket) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📝 *Resumo* %s\n", formatSource(ticket.SummarySource))
	if ticket.Summary == "" {
		b.WriteString("_vazio_\n\n")
	} else {
		fmt.Fprintf(&b, "%s\n\n", markdown.EscapeV2(ticket.Summary))
	}

	label := ticket.Label
	if label == "" {
		label = "—"
	}

	fmt.Fprintf(&b, "🏷 *Categoria* %s\n%s\n", formatSource(ticket.LabelSource), markdown.EscapeV2(label))

	ranked := classifier.Result{Scores: ticket.Scores}.Ranked()
	if len(ranked) > 0 {
		b.WriteString("\n📊 *Scores*\n")

		for _, ls := range ranked[:min(maxRankedScores, len(ranked))] {
			fmt.Fprintf(&b, "– %s: %s\n", markdown.EscapeV2(ls.Label), markdown.EscapeV2(fmt.Sprintf("%.2f", ls.Score)))
		}
	}

	if ticket.Language != "" {
		fmt.Fprintf(&b, "\n🌐 Idioma: %s\n", markdown.EscapeV2(ticket.Language))
	}

	return b.String()
}

func formatSource(source domain.Source) string {
	switch source {
	case domain.SourceModel:
		return "\\(modelo\\)"
	case domain.SourceRule:
		return "\\(regra\\)"
	case domain.SourceFallback:
		return "\\(heurística\\)"
	default:
		return ""
	}
}

func formatStats(stats []domain.LabelStat) string {
	if len(stats) == 0 {
		return "📊 Nenhum ticket nas últimas 24h\\."
	}

	var total int64
	for _, s := range stats {
		total += s.Count
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Tickets nas últimas 24h: %d*\n\n", total)

	for _, s := range stats {
		label := s.Label
		if label == "" {
			label = "sem categoria"
		}

		fmt.Fprintf(&b, "– %s: %d\n", markdown.EscapeV2(label), s.Count)
	}

	return b.String()
}

func formatBatch(result *triage.BatchResult) string {
	header := fmt.Sprintf("✅ *%d tickets processados*\n\n", len(result.Tickets))

	preview := fitPreview(result.Preview, telegramMessageMaxLength-len(header)-len("```\n\n```")-64)
	if preview == "" {
		return header
	}

	return header + markdown.PreBlock(preview)
}

// fitPreview keeps whole lines of the preview table while the escaped text
// fits in limit bytes.
func fitPreview(preview string, limit int) string {
	var (
		lines []string
		size  int
	)

	for _, line := range strings.Split(strings.TrimRight(preview, "\n"), "\n") {
		size += len(markdown.EscapeCode(line)) + 1
		if size > limit {
			break
		}

		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}
