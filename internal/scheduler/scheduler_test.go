package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"triagem/internal/domain"
)

type stubFetcher struct {
	items map[int64][]domain.FeedItem
	err   error
	hours []int64
}

func (f *stubFetcher) FetchHourFeeds(_ context.Context, hourUTC int64) (map[int64][]domain.FeedItem, error) {
	f.hours = append(f.hours, hourUTC)
	return f.items, f.err
}

type stubStore struct {
	mu      sync.Mutex
	tickets []domain.Ticket
	userIDs []int64
	stats   map[int64][]domain.LabelStat
	since   time.Time
}

func (s *stubStore) AddTickets(_ context.Context, tickets []domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tickets = append(s.tickets, tickets...)
	return nil
}

func (s *stubStore) GetHourUserIDs(_ context.Context, _ int64) ([]int64, error) {
	return s.userIDs, nil
}

func (s *stubStore) GetUserLabelStats(_ context.Context, userID int64, since time.Time) ([]domain.LabelStat, error) {
	s.since = since
	return s.stats[userID], nil
}

type stubSender struct {
	items   map[int64]int
	reports map[int64][]domain.LabelStat
}

func (s *stubSender) SendItems(_ context.Context, chatID int64, items []domain.FeedItem) error {
	if s.items == nil {
		s.items = make(map[int64]int)
	}
	s.items[chatID] += len(items)
	return nil
}

func (s *stubSender) SendReport(chatID int64, stats []domain.LabelStat) error {
	if s.reports == nil {
		s.reports = make(map[int64][]domain.LabelStat)
	}
	s.reports[chatID] = stats
	return nil
}

func TestRunHourSendsItemsAndReports(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 5, 0, time.UTC)

	fetcher := &stubFetcher{items: map[int64][]domain.FeedItem{
		7: {
			{FeedID: 1, FeedURL: "https://a.example.com/feed", Ticket: domain.Ticket{UserID: 7, Label: "Dúvida"}},
			{FeedID: 1, FeedURL: "https://a.example.com/feed", Ticket: domain.Ticket{UserID: 7, Label: "Outros"}},
		},
	}}
	store := &stubStore{
		userIDs: []int64{7, 8},
		stats: map[int64][]domain.LabelStat{
			7: {{Label: "Dúvida", Count: 1}},
		},
	}
	sender := &stubSender{}

	s := New(context.Background(), sender, fetcher, store, slog.Default())
	s.now = func() time.Time { return now }

	s.checkHour()

	if len(fetcher.hours) != 1 || fetcher.hours[0] != 9 {
		t.Fatalf("Expected fetch for hour 9, got %v", fetcher.hours)
	}

	if sender.items[7] != 2 {
		t.Fatalf("Expected 2 items sent to user 7, got %d", sender.items[7])
	}

	if len(store.tickets) != 2 || store.tickets[0].BatchID != "https://a.example.com/feed" {
		t.Fatalf("Unexpected stored tickets: %+v", store.tickets)
	}

	if len(sender.reports) != 2 || len(sender.reports[7]) != 1 || sender.reports[8] != nil {
		t.Fatalf("Unexpected reports: %+v", sender.reports)
	}

	if !store.since.Equal(now.Add(-reportWindow)) {
		t.Fatalf("Unexpected report window start: %v", store.since)
	}
}

func TestRunHourReportsEvenWhenFetchFails(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("boom")}
	store := &stubStore{userIDs: []int64{1}}
	sender := &stubSender{}

	s := New(context.Background(), sender, fetcher, store, slog.Default())
	s.runHour(context.Background(), 0)

	if len(sender.items) != 0 {
		t.Fatalf("Expected no items, got %v", sender.items)
	}

	if _, ok := sender.reports[1]; !ok {
		t.Fatalf("Expected report for user 1")
	}
}

func TestRunHourStopsOnDoneContext(t *testing.T) {
	fetcher := &stubFetcher{}
	sender := &stubSender{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(ctx, sender, fetcher, &stubStore{userIDs: []int64{1}}, slog.Default())
	s.runHour(ctx, 0)

	if len(fetcher.hours) != 0 || len(sender.reports) != 0 {
		t.Fatalf("Expected nothing to run on done context")
	}
}

func TestFeedIDs(t *testing.T) {
	ids := feedIDs([]domain.FeedItem{{FeedID: 2}, {FeedID: 1}, {FeedID: 2}})

	if len(ids) != 2 || ids[0] != 2 || ids[1] != 1 {
		t.Fatalf("Unexpected feed IDs: %v", ids)
	}
}

func TestStartStop(t *testing.T) {
	s := New(context.Background(), &stubSender{}, &stubFetcher{}, &stubStore{}, slog.Default())

	if err := s.Start(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	s.Stop()
}
