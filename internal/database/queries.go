package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"triagem/internal/domain"
)

const insertTicketQuery = `insert into tickets (
	user_id, batch_id, text, summary, summary_source,
	label, label_source, scores, language, created_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (d *Database) AddTicket(ctx context.Context, ticket *domain.Ticket) (int64, error) {
	args, err := ticketArgs(ticket)
	if err != nil {
		return 0, err
	}

	res, err := d.db.ExecContext(ctx, insertTicketQuery, args...)
	if err != nil {
		return 0, fmt.Errorf("insert ticket: %w", err)
	}

	return res.LastInsertId()
}

// AddTickets stores a batch in one transaction.
func (d *Database) AddTickets(ctx context.Context, tickets []domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertTicketQuery)
	if err != nil {
		return errors.Join(fmt.Errorf("prepare statement: %w", err), tx.Rollback())
	}
	defer func() {
		if err = stmt.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close statement",
				"error", err,
				"operation", "AddTickets")
		}
	}()

	for i := range tickets {
		args, argsErr := ticketArgs(&tickets[i])
		if argsErr != nil {
			return errors.Join(argsErr, tx.Rollback())
		}

		if _, execErr := stmt.ExecContext(ctx, args...); execErr != nil {
			return errors.Join(fmt.Errorf("insert ticket: %w", execErr), tx.Rollback())
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit transaction: %w", commitErr)
	}

	return nil
}

func ticketArgs(ticket *domain.Ticket) ([]any, error) {
	scores := ticket.Scores
	if scores == nil {
		scores = map[string]float64{}
	}

	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return nil, fmt.Errorf("marshal scores: %w", err)
	}

	createdAt := ticket.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return []any{
		ticket.UserID,
		ticket.BatchID,
		ticket.Text,
		ticket.Summary,
		string(ticket.SummarySource),
		ticket.Label,
		string(ticket.LabelSource),
		string(scoresJSON),
		ticket.Language,
		createdAt.UTC().Unix(),
	}, nil
}

// GetUserLabelStats counts the user's tickets per label created at or after
// since, most frequent first.
func (d *Database) GetUserLabelStats(
	ctx context.Context,
	userID int64,
	since time.Time,
) ([]domain.LabelStat, error) {
	query := `select label, count(*) as cnt
	from tickets
	where user_id = ? and created_at >= ?
	group by label
	order by cnt desc, label asc`

	rows, err := d.db.QueryContext(ctx, query, userID, since.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"userID", userID,
				"operation", "GetUserLabelStats")
		}
	}()

	var stats []domain.LabelStat
	for rows.Next() {
		var s domain.LabelStat
		if err = rows.Scan(&s.Label, &s.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		stats = append(stats, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return stats, nil
}

func (d *Database) AddFeed(
	ctx context.Context,
	userID int64,
	feedURL string,
	feedTitle string,
) error {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return errors.New("feed URL is empty")
	}

	feedTitle = strings.TrimSpace(feedTitle)
	if feedTitle == "" {
		feedTitle = feedURL
	}

	query := "insert or ignore into feeds (user_id, url, title) values (?, ?, ?)"

	_, err := d.db.ExecContext(ctx, query, userID, feedURL, feedTitle)

	return err
}

func (d *Database) UpdateFeedTitle(ctx context.Context, feedID int64, feedTitle string) error {
	feedTitle = strings.TrimSpace(feedTitle)
	if feedTitle == "" {
		return errors.New("feed title is empty")
	}

	query := "update feeds set title = ? where id = ?"

	_, err := d.db.ExecContext(ctx, query, feedTitle, feedID)

	return err
}

// RemoveFeed deletes a feed only when it belongs to userID.
func (d *Database) RemoveFeed(ctx context.Context, userID int64, feedID int64) error {
	query := "delete from feeds where id = ? and user_id = ?"

	_, err := d.db.ExecContext(ctx, query, feedID, userID)

	return err
}

func (d *Database) GetUserFeeds(ctx context.Context, userID int64) ([]domain.UserFeed, error) {
	query := "select id, user_id, url, title from feeds where user_id = ? order by id"

	return d.queryFeeds(ctx, "GetUserFeeds", query, userID)
}

// GetHourFeeds returns the feeds of users whose report hour is hourUTC.
// Users without settings report at 00 UTC.
func (d *Database) GetHourFeeds(ctx context.Context, hourUTC int64) ([]domain.UserFeed, error) {
	query := `select f.id, f.user_id, f.url, f.title
	from feeds as f
	left join user_settings as us
	on us.user_id = f.user_id
	where coalesce(us.report_hour_utc, 0) = ?
	order by f.id`

	return d.queryFeeds(ctx, "GetHourFeeds", query, hourUTC)
}

func (d *Database) queryFeeds(
	ctx context.Context,
	operation string,
	query string,
	args ...any,
) ([]domain.UserFeed, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"operation", operation)
		}
	}()

	var feeds []domain.UserFeed
	for rows.Next() {
		var f domain.UserFeed
		if err = rows.Scan(&f.ID, &f.UserID, &f.URL, &f.Title); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		f.URL = strings.TrimSpace(f.URL)
		f.Title = strings.TrimSpace(f.Title)

		feeds = append(feeds, f)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return feeds, nil
}

// GetHourUserIDs returns users with tickets or feeds whose report hour is
// hourUTC. Users without settings report at 00 UTC.
func (d *Database) GetHourUserIDs(ctx context.Context, hourUTC int64) ([]int64, error) {
	query := `select u.user_id
	from (
		select user_id from tickets
		union
		select user_id from feeds
	) as u
	left join user_settings as us
	on us.user_id = u.user_id
	where coalesce(us.report_hour_utc, 0) = ?
	order by u.user_id`

	rows, err := d.db.QueryContext(ctx, query, hourUTC)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"hourUTC", hourUTC,
				"operation", "GetHourUserIDs")
		}
	}()

	var userIDs []int64
	for rows.Next() {
		var userID int64
		if err = rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		userIDs = append(userIDs, userID)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return userIDs, nil
}

func (d *Database) GetUserSettingsWithDefault(
	ctx context.Context,
	userID int64,
) (*domain.UserSettings, error) {
	query := `select user_id, labels, report_hour_utc
	from user_settings
	where user_id = ?`

	var (
		us         domain.UserSettings
		labelsJSON string
	)

	err := d.db.QueryRowContext(ctx, query, userID).Scan(&us.UserID, &labelsJSON, &us.ReportHourUTC)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.UserSettings{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}

	if err = json.Unmarshal([]byte(labelsJSON), &us.Labels); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}

	return &us, nil
}

func (d *Database) UpsertUserSettings(ctx context.Context, userSettings *domain.UserSettings) error {
	labels := userSettings.Labels
	if labels == nil {
		labels = []string{}
	}

	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}

	query := `insert into user_settings (user_id, labels, report_hour_utc)
	values (?, ?, ?)
	on conflict (user_id) do update
	set labels = excluded.labels,
	report_hour_utc = excluded.report_hour_utc`

	_, err = d.db.ExecContext(ctx, query, userSettings.UserID, string(labelsJSON), userSettings.ReportHourUTC)

	return err
}
