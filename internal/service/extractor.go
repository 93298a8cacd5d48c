package service

import (
	"strings"
	"time"

	"github.com/leanrobert/telegram-jira-bot/internal/domain"
)

const statusField = "status"

// ExtractStatusTransitions walks a ticket's change history and returns the
// status-field transitions whose timestamp falls inside [now-window, now],
// in the tracker's native history order. Older entries were already visible
// to a prior cycle and are dropped here; entries timestamped in the future
// (tracker clock skew beyond "now") wait for a later cycle.
func ExtractStatusTransitions(ticket *domain.TrackedTicket, now time.Time, window time.Duration) []domain.Transition {
	cutoff := now.Add(-window)

	var transitions []domain.Transition
	for _, entry := range ticket.History {
		if entry.CreatedAt.Before(cutoff) || entry.CreatedAt.After(now) {
			continue
		}
		for _, item := range entry.Items {
			if !strings.EqualFold(item.Field, statusField) {
				continue
			}
			transitions = append(transitions, domain.Transition{
				JiraKey:   ticket.JiraKey,
				OldStatus: item.From,
				NewStatus: item.To,
				ChangedBy: entry.Author,
				ChangedAt: entry.CreatedAt,
			})
		}
	}
	return transitions
}
