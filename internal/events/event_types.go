package events

import "time"

// EventType enumerates reconciliation event identifiers.
type EventType string

const (
	EventTransitionRecorded EventType = "transition_recorded"
	EventNotificationSent   EventType = "notification_sent"
	EventNotificationFailed EventType = "notification_failed"
	EventCycleCompleted     EventType = "cycle_completed"
)

// Event describes something the reconciler observed or did. Handlers are
// observational only; ledger writes and delivery never depend on them.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	JiraKey   string    `json:"jira_key,omitempty"`
	ChatID    int64     `json:"chat_id,omitempty"`
	OldStatus string    `json:"old_status,omitempty"`
	NewStatus string    `json:"new_status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
