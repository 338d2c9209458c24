package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime"
	"strings"
	"sync"

	"github.com/mmcdole/gofeed"
	"mvdan.cc/xurls/v2"

	"triagem/internal/domain"
)

const fetchFeedsMaxConcurrencyGrowthFactor = 10

// Store is the part of the database the feed fetcher needs.
type Store interface {
	GetHourFeeds(ctx context.Context, hourUTC int64) ([]domain.UserFeed, error)
	GetUserFeeds(ctx context.Context, userID int64) ([]domain.UserFeed, error)
	UpdateFeedTitle(ctx context.Context, feedID int64, feedTitle string) error
	GetUserSettingsWithDefault(ctx context.Context, userID int64) (*domain.UserSettings, error)
}

type Fetcher struct {
	store     Store
	parser    *Parser
	libParser *gofeed.Parser
	log       *slog.Logger
}

func NewFetcher(store Store, t Triager, log *slog.Logger) *Fetcher {
	libParser := gofeed.NewParser()

	return &Fetcher{
		store:     store,
		parser:    NewParser(store, t, libParser, log),
		libParser: libParser,
		log:       log,
	}
}

// FindValidFeeds extracts https URLs from text and keeps the ones that parse
// as RSS, Atom or JSON feeds.
func (f *Fetcher) FindValidFeeds(ctx context.Context, text string) ([]domain.Feed, error) {
	httpsURLRe, err := xurls.StrictMatchingScheme("https://")
	if err != nil {
		return nil, fmt.Errorf("create regexp: %w", err)
	}

	urls := httpsURLRe.FindAllString(strings.TrimSpace(text), -1)

	feeds := make([]domain.Feed, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	var errs []error

	for _, u := range urls {
		feed, validateFeedErr := f.validateFeed(ctx, strings.TrimSpace(u))
		if validateFeedErr != nil {
			errs = append(errs, fmt.Errorf("validate feed: %w", validateFeedErr))
			continue
		}

		if _, ok := seen[feed.URL]; ok {
			continue
		}

		feeds = append(feeds, *feed)
		seen[feed.URL] = struct{}{}
	}

	return feeds, errors.Join(errs...)
}

func (f *Fetcher) FetchHourFeeds(
	ctx context.Context,
	hourUTC int64,
) (map[int64][]domain.FeedItem, error) {
	feeds, err := f.store.GetHourFeeds(ctx, hourUTC)
	if err != nil {
		return nil, fmt.Errorf("get hour feeds: %w", err)
	}

	return f.fetchFeeds(ctx, feeds)
}

func (f *Fetcher) FetchUserFeeds(
	ctx context.Context,
	userID int64,
) (map[int64][]domain.FeedItem, error) {
	feeds, err := f.store.GetUserFeeds(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user feeds: %w", err)
	}

	return f.fetchFeeds(ctx, feeds)
}

func (f *Fetcher) validateFeed(ctx context.Context, feedURL string) (*domain.Feed, error) {
	if feedURL == "" {
		return nil, errors.New("feed URL is empty")
	}

	if _, err := url.Parse(feedURL); err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}

	parsed, err := f.libParser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed (URL = %s): %w", feedURL, err)
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		f.log.WarnContext(ctx, "Empty feed title",
			"feedURL", feedURL,
			"fallbackTitle", feedURL)

		title = feedURL
	}

	return &domain.Feed{URL: feedURL, Title: title}, nil
}

func (f *Fetcher) fetchFeeds(
	ctx context.Context,
	feeds []domain.UserFeed,
) (map[int64][]domain.FeedItem, error) {
	userItemsMap := make(map[int64][]domain.FeedItem)
	if len(feeds) == 0 {
		return userItemsMap, nil
	}

	labels, err := f.userLabels(ctx, feeds)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup

	concurrency := min(runtime.NumCPU()*fetchFeedsMaxConcurrencyGrowthFactor, len(feeds))
	semCh := make(chan struct{}, concurrency)

	results := make([]domain.UserItems, len(feeds))
	errs := make([]error, len(feeds))

	for i, feed := range feeds {
		semCh <- struct{}{}

		wg.Go(func() {
			defer func() { <-semCh }()

			items, parseErr := f.parser.ParseFeed(ctx, &feed, labels[feed.UserID])
			if parseErr != nil {
				errs[i] = fmt.Errorf("parse feed (URL = %s): %w", feed.URL, parseErr)
			}

			results[i] = domain.UserItems{UserID: feed.UserID, Items: items}
		})
	}

	wg.Wait()

	for _, userItems := range results {
		if len(userItems.Items) == 0 {
			continue
		}

		userItemsMap[userItems.UserID] = append(userItemsMap[userItems.UserID], userItems.Items...)
	}

	return userItemsMap, errors.Join(errs...)
}

func (f *Fetcher) userLabels(ctx context.Context, feeds []domain.UserFeed) (map[int64][]string, error) {
	labels := make(map[int64][]string)

	for _, feed := range feeds {
		if _, ok := labels[feed.UserID]; ok {
			continue
		}

		settings, err := f.store.GetUserSettingsWithDefault(ctx, feed.UserID)
		if err != nil {
			return nil, fmt.Errorf("get user settings: %w", err)
		}

		labels[feed.UserID] = settings.Labels
	}

	return labels, nil
}
