package domain

import (
	"strings"
	"time"
)

// Subscriber is a Telegram chat that opted in to ticket notifications.
// Rows are never deleted; opting out only clears NotificationsEnabled.
type Subscriber struct {
	ChatID               int64
	TelegramUserID       int64
	Username             string
	FirstName            string
	LastName             string
	NotificationsEnabled bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Identity is the key used to look up a subscriber's tickets in the issue
// tracker: the Telegram username when present, the display name otherwise.
type Identity struct {
	Username string
	FullName string
}

// Identity derives the tracker lookup identity for the subscriber.
func (s *Subscriber) Identity() Identity {
	return Identity{
		Username: s.Username,
		FullName: strings.TrimSpace(s.FirstName + " " + s.LastName),
	}
}
