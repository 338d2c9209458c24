package database

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"triagem/internal/domain"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()

	db, err := New(context.Background(), filepath.Join(t.TempDir(), "db.sqlite"), slog.Default())
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	return db
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")

	first, err := New(context.Background(), path, slog.Default())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(context.Background(), path, slog.Default())
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestTicketsAndLabelStats(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)

	now := time.Now().UTC()

	id, err := db.AddTicket(ctx, &domain.Ticket{
		UserID:        1,
		Text:          "o sistema não funciona",
		Summary:       "O sistema não funciona.",
		SummarySource: domain.SourceRule,
		Label:         "Reclamação",
		Scores:        map[string]float64{"Reclamação": 0.21},
		LabelSource:   domain.SourceFallback,
		CreatedAt:     now,
	})
	require.NoError(t, err)
	require.Positive(t, id)

	require.NoError(t, db.AddTickets(ctx, []domain.Ticket{
		{UserID: 1, BatchID: "b", Text: "a", Label: "Dúvida", CreatedAt: now},
		{UserID: 1, BatchID: "b", Text: "b", Label: "Reclamação", CreatedAt: now},
		{UserID: 1, BatchID: "b", Text: "c", Label: "Feedback", CreatedAt: now.Add(-48 * time.Hour)},
		{UserID: 2, BatchID: "c", Text: "d", Label: "Dúvida", CreatedAt: now},
	}))
	require.NoError(t, db.AddTickets(ctx, nil))

	stats, err := db.GetUserLabelStats(ctx, 1, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, []domain.LabelStat{
		{Label: "Reclamação", Count: 2},
		{Label: "Dúvida", Count: 1},
	}, stats)
}

func TestFeeds(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)

	require.NoError(t, db.AddFeed(ctx, 1, " https://help.example.com/feed ", ""))
	require.NoError(t, db.AddFeed(ctx, 1, "https://help.example.com/feed", "duplicate"))
	require.NoError(t, db.AddFeed(ctx, 2, "https://other.example.com/rss", "Other"))
	require.Error(t, db.AddFeed(ctx, 1, " ", "x"))

	feeds, err := db.GetUserFeeds(ctx, 1)
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	require.Equal(t, "https://help.example.com/feed", feeds[0].Title)

	require.NoError(t, db.UpdateFeedTitle(ctx, feeds[0].ID, "Help desk"))

	feeds, err = db.GetUserFeeds(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Help desk", feeds[0].Title)

	require.NoError(t, db.RemoveFeed(ctx, 2, feeds[0].ID))
	feeds, err = db.GetUserFeeds(ctx, 1)
	require.NoError(t, err)
	require.Len(t, feeds, 1, "feed of another user must not be removed")

	require.NoError(t, db.RemoveFeed(ctx, 1, feeds[0].ID))
	feeds, err = db.GetUserFeeds(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, feeds)
}

func TestUserSettingsAndHourQueries(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)

	settings, err := db.GetUserSettingsWithDefault(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, &domain.UserSettings{UserID: 7}, settings)

	require.NoError(t, db.UpsertUserSettings(ctx, &domain.UserSettings{
		UserID:        7,
		Labels:        []string{"Financeiro", "Outros"},
		ReportHourUTC: 9,
	}))

	settings, err = db.GetUserSettingsWithDefault(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{"Financeiro", "Outros"}, settings.Labels)
	require.Equal(t, int64(9), settings.ReportHourUTC)

	require.NoError(t, db.AddFeed(ctx, 7, "https://a.example.com/feed", "A"))
	require.NoError(t, db.AddFeed(ctx, 8, "https://b.example.com/feed", "B"))
	_, err = db.AddTicket(ctx, &domain.Ticket{UserID: 9, Text: "x", Label: "Dúvida"})
	require.NoError(t, err)

	userIDs, err := db.GetHourUserIDs(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []int64{8, 9}, userIDs)

	userIDs, err = db.GetHourUserIDs(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, []int64{7}, userIDs)

	feeds, err := db.GetHourFeeds(ctx, 9)
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	require.Equal(t, int64(7), feeds[0].UserID)

	feeds, err = db.GetHourFeeds(ctx, 0)
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	require.Equal(t, int64(8), feeds[0].UserID)
}
