package notifier

import (
	"fmt"
	"strings"

	"github.com/leanrobert/telegram-jira-bot/internal/domain"
)

// StatusEmoji maps a workflow state to the emoji the bot has always used.
func StatusEmoji(status string) string {
	switch status {
	case domain.StatusDone:
		return "✅"
	case domain.StatusReview:
		return "🔎"
	case domain.StatusPaused:
		return "⏳"
	case domain.StatusInProgress:
		return "🚀"
	case domain.StatusBacklog:
		return "📝"
	default:
		return "🔄"
	}
}

// FormatStatusChange renders the Markdown message for a status transition.
func FormatStatusChange(title string, change *domain.StatusChange) string {
	var b strings.Builder
	b.WriteString("🔔 *Actualización de ticket*\n\n")
	fmt.Fprintf(&b, "📄 *%s*", change.JiraKey)
	if title != "" {
		fmt.Fprintf(&b, ": %s", title)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s → %s %s\n",
		StatusEmoji(change.OldStatus), change.OldStatus,
		StatusEmoji(change.NewStatus), change.NewStatus)
	if change.ChangedBy != "" {
		fmt.Fprintf(&b, "👤 Por: %s\n", change.ChangedBy)
	}
	fmt.Fprintf(&b, "🕒 %s", change.ChangedAt.Format("02/01/2006 15:04"))
	return b.String()
}
