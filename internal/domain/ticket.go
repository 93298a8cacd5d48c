package domain

import "time"

// Well-known Jira workflow states. Statuses are free-form strings in the
// tracker; these constants only cover the states the bot renders specially.
const (
	StatusBacklog    = "Backlog"
	StatusInProgress = "En Curso"
	StatusPaused     = "Paused"
	StatusReview     = "Revisar"
	StatusDone       = "Finalizada"
)

// Ticket is the local mirror of a Jira issue tracked for a subscriber.
// Only Status is mutated by the reconciler; everything else is written by
// the creation workflow or refreshed opportunistically from search results.
type Ticket struct {
	ID             string
	JiraKey        string
	ChatID         int64
	TelegramUserID int64
	Category       string
	Title          string
	Description    string
	Status         string
	Priority       string
	StartDate      *time.Time
	DueDate        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HistoryItem is one field-level change inside a changelog entry.
type HistoryItem struct {
	Field string
	From  string
	To    string
}

// HistoryEntry is one changelog entry of a Jira issue, in the tracker's
// native history order.
type HistoryEntry struct {
	Author    string
	CreatedAt time.Time
	Items     []HistoryItem
}

// TrackedTicket is a Jira issue as returned by the issue source, including
// its full change history.
type TrackedTicket struct {
	JiraKey     string
	Title       string
	Description string
	Category    string
	Status      string
	Priority    string
	DueDate     *time.Time
	History     []HistoryEntry
}
