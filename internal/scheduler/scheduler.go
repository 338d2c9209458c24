package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"triagem/internal/domain"
)

const (
	HourlyReportSpec       = "0 * * * *"
	Timezone               = "UTC"
	TimezoneOffsetSeconds  = 0
	checkHourReportTimeout = 15 * time.Minute
	reportWindow           = 24 * time.Hour
)

type Fetcher interface {
	FetchHourFeeds(ctx context.Context, hourUTC int64) (map[int64][]domain.FeedItem, error)
}

type Store interface {
	AddTickets(ctx context.Context, tickets []domain.Ticket) error
	GetHourUserIDs(ctx context.Context, hourUTC int64) ([]int64, error)
	GetUserLabelStats(ctx context.Context, userID int64, since time.Time) ([]domain.LabelStat, error)
}

type Sender interface {
	SendItems(ctx context.Context, chatID int64, items []domain.FeedItem) error
	SendReport(chatID int64, stats []domain.LabelStat) error
}

// Scheduler sends each user the triaged feed items and the category report
// once a day at the user's report hour.
type Scheduler struct {
	ctx     context.Context
	cron    *cron.Cron
	sender  Sender
	fetcher Fetcher
	store   Store
	now     func() time.Time
	log     *slog.Logger
}

func New(ctx context.Context, sender Sender, fetcher Fetcher, store Store, log *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLocation(time.FixedZone(Timezone, TimezoneOffsetSeconds)))

	return &Scheduler{
		ctx:     ctx,
		cron:    c,
		sender:  sender,
		fetcher: fetcher,
		store:   store,
		now:     time.Now,
		log:     log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(HourlyReportSpec, s.checkHour); err != nil {
		return err
	}

	s.cron.Start()

	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) checkHour() {
	ctx, cancel := context.WithTimeout(s.ctx, checkHourReportTimeout)
	defer cancel()

	s.runHour(ctx, int64(s.now().UTC().Hour()))
}

func (s *Scheduler) runHour(ctx context.Context, hourUTC int64) {
	if ctx.Err() != nil {
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	}

	userItems, err := s.fetcher.FetchHourFeeds(ctx, hourUTC)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to fetch hour feeds",
			"error", err,
			"hourUTC", hourUTC,
			"usersWithItems", len(userItems))
	}

	if ctx.Err() != nil {
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	}

	for userID, items := range userItems {
		if err = s.store.AddTickets(ctx, itemTickets(items)); err != nil {
			s.log.ErrorContext(ctx, "Failed to store feed tickets",
				"error", err,
				"hourUTC", hourUTC,
				"userID", userID,
				"itemCount", len(items))
		}

		if err = s.sender.SendItems(ctx, userID, items); err != nil {
			s.log.ErrorContext(ctx, "Failed to send user items",
				"error", err,
				"hourUTC", hourUTC,
				"userID", userID,
				"itemCount", len(items),
				"feedIDs", feedIDs(items))
		}
	}

	s.sendReports(ctx, hourUTC)
}

func (s *Scheduler) sendReports(ctx context.Context, hourUTC int64) {
	userIDs, err := s.store.GetHourUserIDs(ctx, hourUTC)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to get hour user IDs",
			"error", err,
			"hourUTC", hourUTC)
		return
	}

	since := s.now().Add(-reportWindow)

	for _, userID := range userIDs {
		stats, statsErr := s.store.GetUserLabelStats(ctx, userID, since)
		if statsErr != nil {
			s.log.ErrorContext(ctx, "Failed to get user label stats",
				"error", statsErr,
				"hourUTC", hourUTC,
				"userID", userID)
			continue
		}

		if sendErr := s.sender.SendReport(userID, stats); sendErr != nil {
			s.log.ErrorContext(ctx, "Failed to send user report",
				"error", sendErr,
				"hourUTC", hourUTC,
				"userID", userID,
				"labelCount", len(stats))
		}
	}
}

func itemTickets(items []domain.FeedItem) []domain.Ticket {
	tickets := make([]domain.Ticket, 0, len(items))
	for _, item := range items {
		ticket := item.Ticket
		ticket.BatchID = item.FeedURL
		tickets = append(tickets, ticket)
	}

	return tickets
}

func feedIDs(items []domain.FeedItem) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64

	for _, item := range items {
		if _, ok := seen[item.FeedID]; ok {
			continue
		}

		seen[item.FeedID] = struct{}{}
		ids = append(ids, item.FeedID)
	}

	return ids
}
