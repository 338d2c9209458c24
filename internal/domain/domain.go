package domain

import "time"

// Source tells which path produced a summary or a label.
type Source string

const (
	SourceNone     Source = ""
	SourceRule     Source = "rule"
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

type Ticket struct {
	ID            int64
	UserID        int64
	BatchID       string
	Text          string
	Summary       string
	SummarySource Source
	Label         string
	Scores        map[string]float64
	LabelSource   Source
	Language      string
	CreatedAt     time.Time
}

type Feed struct {
	URL   string
	Title string
}

type UserFeed struct {
	ID     int64
	UserID int64
	URL    string
	Title  string
}

// FeedItem is a helpdesk feed entry after triage.
type FeedItem struct {
	Title     string
	URL       string
	FeedID    int64
	FeedTitle string
	FeedURL   string
	Ticket    Ticket
}

type UserItems struct {
	UserID int64
	Items  []FeedItem
}

type UserSettings struct {
	UserID        int64
	Labels        []string
	ReportHourUTC int64
}

type LabelStat struct {
	Label string
	Count int64
}
