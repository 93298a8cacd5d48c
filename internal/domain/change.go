package domain

import "time"

// NotificationType classifies entries in the notification ledger.
type NotificationType string

const (
	NotificationTypeStatusChange NotificationType = "status_change"
)

// Transition is a single observed change of a ticket's status field,
// extracted from the tracker's changelog.
type Transition struct {
	JiraKey   string
	OldStatus string
	NewStatus string
	ChangedBy string
	ChangedAt time.Time
}

// StatusChange is the transition ledger row: one per distinct
// externally-reported transition. ChangedAt carries the tracker's own
// timestamp; FirstSeenAt is when this process first recorded the row.
// NotificationSent flips from false to true exactly once.
type StatusChange struct {
	ID               int64
	JiraKey          string
	OldStatus        string
	NewStatus        string
	ChangedBy        string
	ChangedAt        time.Time
	FirstSeenAt      time.Time
	NotificationSent bool
}

// NotificationRecord is the delivery ledger row: one per transition actually
// delivered to a specific subscriber. The
// (chat, key, type, old, new) tuple is unique forever.
type NotificationRecord struct {
	ID       int64
	ChatID   int64
	JiraKey  string
	Type     NotificationType
	OldValue string
	NewValue string
	SentAt   time.Time
}
