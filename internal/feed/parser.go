package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"triagem/internal/domain"
)

const (
	triageMaxParallelism = 4
	parseFeedGracePeriod = 10 * time.Minute
)

// Triager summarizes and classifies one ticket text. BackendsReady reports
// whether the summary and label models are loaded.
type Triager interface {
	ProcessText(ctx context.Context, text string, labels []string) domain.Ticket
	BackendsReady() (summary bool, label bool)
}

type Parser struct {
	store       Store
	triager     Triager
	libParser   *gofeed.Parser
	resultCache *triageCache
	log         *slog.Logger
}

func NewParser(
	store Store,
	t Triager,
	libParser *gofeed.Parser,
	log *slog.Logger,
) *Parser {
	if libParser == nil {
		libParser = gofeed.NewParser()
	}

	return &Parser{
		store:       store,
		triager:     t,
		libParser:   libParser,
		resultCache: newTriageCache(triageCacheMaxEntries),
		log:         log,
	}
}

// ParseFeed fetches the feed and triages the items published within the last
// 24 hours. The stored feed title follows the title the feed reports.
func (fp *Parser) ParseFeed(
	ctx context.Context,
	feed *domain.UserFeed,
	labels []string,
) ([]domain.FeedItem, error) {
	feedURL := strings.TrimSpace(feed.URL)
	feedTitle := strings.TrimSpace(feed.Title)

	parsed, err := fp.libParser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed by URL: %w", err)
	}

	var updateTitleErr error

	parsedTitle := strings.TrimSpace(parsed.Title)
	if parsedTitle != "" && parsedTitle != feedTitle {
		if err = fp.store.UpdateFeedTitle(ctx, feed.ID, parsedTitle); err != nil {
			updateTitleErr = fmt.Errorf("update feed title: %w", err)
		} else {
			feedTitle = parsedTitle
		}
	}

	if feedTitle == "" {
		feedTitle = feedURL
	}

	now := time.Now().Round(time.Hour)
	cutoffTime := now.Add(-24*time.Hour - parseFeedGracePeriod)

	var candidates []triageCandidate

	for _, item := range parsed.Items {
		candidate, ok := fp.parseFeedItem(ctx, now, cutoffTime, feedURL, item)
		if !ok {
			continue
		}

		candidate.item.FeedID = feed.ID
		candidate.item.FeedTitle = feedTitle
		candidate.item.FeedURL = feedURL

		candidates = append(candidates, candidate)
	}

	return fp.triageItems(ctx, feed.UserID, candidates, labels), updateTitleErr
}

type triageCandidate struct {
	item      domain.FeedItem
	text      string
	published time.Time
}

func (fp *Parser) parseFeedItem(
	ctx context.Context,
	now time.Time,
	cutoffTime time.Time,
	feedURL string,
	item *gofeed.Item,
) (triageCandidate, bool) {
	publishedTime := now

	if item.PublishedParsed != nil {
		publishedTime = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		publishedTime = *item.UpdatedParsed
	}

	if !publishedTime.After(cutoffTime) {
		return triageCandidate{}, false
	}

	itemURL := strings.TrimSpace(item.Link)
	itemTitle := strings.TrimSpace(item.Title)

	if itemURL == "" {
		fp.log.WarnContext(ctx, "Skipping feed item with empty URL",
			"feedURL", feedURL,
			"itemTitle", itemTitle)

		return triageCandidate{}, false
	}

	text := itemText(item)
	if text == "" {
		fp.log.WarnContext(ctx, "Skipping feed item with empty text",
			"feedURL", feedURL,
			"itemURL", itemURL)

		return triageCandidate{}, false
	}

	if itemTitle == "" {
		itemTitle = itemURL
	}

	return triageCandidate{
		item:      domain.FeedItem{Title: itemTitle, URL: itemURL},
		text:      text,
		published: publishedTime,
	}, true
}

func (fp *Parser) triageItems(
	ctx context.Context,
	userID int64,
	candidates []triageCandidate,
	labels []string,
) []domain.FeedItem {
	if len(candidates) == 0 {
		return nil
	}

	items := make([]domain.FeedItem, len(candidates))
	workerCount := min(triageMaxParallelism, len(candidates))

	tasks := make(chan int)
	var wg sync.WaitGroup

	for range workerCount {
		wg.Go(func() {
			for i := range tasks {
				items[i] = candidates[i].item
				items[i].Ticket = fp.triageItem(ctx, candidates[i], labels)
				items[i].Ticket.UserID = userID
			}
		})
	}

	for i := range candidates {
		tasks <- i
	}

	close(tasks)
	wg.Wait()

	return items
}

func (fp *Parser) triageItem(
	ctx context.Context,
	candidate triageCandidate,
	labels []string,
) domain.Ticket {
	now := time.Now().UTC()
	cacheKey := triageCacheKey(candidate.item.URL, candidate.text, labels)

	if ticket, ok := fp.resultCache.get(cacheKey, now); ok {
		return ticket
	}

	ticket := fp.triager.ProcessText(ctx, candidate.text, labels)

	if fp.cacheable(ticket) {
		expiresAt := candidate.published.Add(24*time.Hour + parseFeedGracePeriod)
		fp.resultCache.set(cacheKey, ticket, expiresAt, now)
	}

	return ticket
}

// cacheable rejects fallback results produced while the model was ready:
// they come from a failed call and the next run should retry the model.
func (fp *Parser) cacheable(ticket domain.Ticket) bool {
	summaryReady, labelReady := fp.triager.BackendsReady()

	if summaryReady && ticket.SummarySource == domain.SourceFallback {
		return false
	}

	return !labelReady || ticket.LabelSource != domain.SourceFallback
}
