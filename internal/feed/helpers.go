package feed

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"triagem/internal/domain"
	"triagem/internal/markdown"
	"triagem/internal/textnorm"
)

const (
	telegramMessageMaxLength = 4096

	itemsHeader         = "🗂 *Novos tickets*\n\n"
	itemsContinueHeader = "🗂 *Novos tickets \\(continuação\\)*\n\n"
)

type feedGroupKey struct {
	FeedID    int64
	FeedTitle string
	FeedURL   string
}

// FormatItemsAsMessages groups items by feed and splits the result into
// MarkdownV2 messages that fit the Telegram length limit.
func FormatItemsAsMessages(ctx context.Context, items []domain.FeedItem, log *slog.Logger) []string {
	var messages []string
	var currentMessage strings.Builder

	currentMessage.WriteString(itemsHeader)
	headerLength := currentMessage.Len()

	feedGroups := make(map[feedGroupKey][]domain.FeedItem)

	for _, item := range items {
		normalized, ok := normalizeItem(ctx, item, log)
		if !ok {
			continue
		}

		key := feedGroupKey{
			FeedID:    normalized.FeedID,
			FeedTitle: normalized.FeedTitle,
			FeedURL:   normalized.FeedURL,
		}
		feedGroups[key] = append(feedGroups[key], normalized)
	}

	feedGroupKeys := slices.SortedFunc(
		maps.Keys(feedGroups),
		func(a, b feedGroupKey) int { return cmp.Compare(a.FeedID, b.FeedID) },
	)

	for _, key := range feedGroupKeys {
		feedItems := feedGroups[key]

		feedHeader := fmt.Sprintf("📌 *[%s](%s)*\n\n", markdown.EscapeV2(key.FeedTitle), key.FeedURL)

		if currentMessage.Len()+len(feedHeader)+len(formatItem(feedItems[0])) > telegramMessageMaxLength {
			messages = append(messages, currentMessage.String())
			currentMessage.Reset()
			currentMessage.WriteString(itemsContinueHeader)
		}

		currentMessage.WriteString(feedHeader)

		for _, item := range feedItems {
			bulletPoint := formatItem(item)

			if currentMessage.Len()+len(bulletPoint) > telegramMessageMaxLength {
				messages = append(messages, currentMessage.String())
				currentMessage.Reset()
				currentMessage.WriteString(itemsContinueHeader)
				currentMessage.WriteString(feedHeader)
			}

			currentMessage.WriteString(bulletPoint)
		}
	}

	if currentMessage.Len() > headerLength {
		messages = append(messages, currentMessage.String())
	}

	return messages
}

func formatItem(item domain.FeedItem) string {
	var b strings.Builder

	fmt.Fprintf(&b, "– [%s](%s)", markdown.EscapeV2(item.Title), item.URL)

	if item.Ticket.Label != "" {
		fmt.Fprintf(&b, " · *%s*", markdown.EscapeV2(item.Ticket.Label))
	}

	b.WriteString("\n")

	if item.Ticket.Summary != "" {
		fmt.Fprintf(&b, "_%s_\n", markdown.EscapeV2(item.Ticket.Summary))
	}

	b.WriteString("\n")

	return b.String()
}

func normalizeItem(ctx context.Context, item domain.FeedItem, log *slog.Logger) (domain.FeedItem, bool) {
	normalized := item

	normalized.Title = strings.TrimSpace(item.Title)
	normalized.URL = strings.TrimSpace(item.URL)
	normalized.FeedTitle = strings.TrimSpace(item.FeedTitle)
	normalized.FeedURL = strings.TrimSpace(item.FeedURL)

	switch {
	case normalized.FeedURL == "" && normalized.URL != "":
		normalized.FeedURL = normalized.URL
	case normalized.URL == "" && normalized.FeedURL != "":
		normalized.URL = normalized.FeedURL
	case normalized.URL == "" && normalized.FeedURL == "":
		log.WarnContext(ctx, "Skipping item with empty URLs",
			"feedID", item.FeedID,
			"title", normalized.Title)

		return domain.FeedItem{}, false
	}

	if normalized.Title == "" {
		normalized.Title = normalized.URL
	}

	if normalized.FeedTitle == "" {
		log.WarnContext(ctx, "Empty feed title",
			"feedID", item.FeedID,
			"feedURL", normalized.FeedURL,
			"itemURL", normalized.URL)

		normalized.FeedTitle = normalized.FeedURL
	}

	return normalized, true
}

// canonicalItemURL drops the query and fragment so tracking parameters do not
// split cache entries.
func canonicalItemURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}

	u.RawQuery = ""
	u.Fragment = ""

	return u.String()
}

// itemText returns the plain text of the item body, falling back to the
// description and then to the title.
func itemText(item *gofeed.Item) string {
	for _, raw := range []string{item.Content, item.Description, item.Title} {
		if text := htmlToText(raw); text != "" {
			return text
		}
	}

	return ""
}

func htmlToText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return textnorm.CollapseSpaces(raw)
	}

	doc.Find("script, style").Remove()
	doc.Find("br").Each(func(_ int, br *goquery.Selection) {
		br.ReplaceWithHtml("\n")
	})
	doc.Find("p, div, li, h1, h2, h3, h4, h5, h6, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	return textnorm.CollapseSpaces(doc.Text())
}
