package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leanrobert/telegram-jira-bot/internal/domain"
	"github.com/leanrobert/telegram-jira-bot/internal/events"
	"github.com/leanrobert/telegram-jira-bot/internal/notifier"
	"github.com/leanrobert/telegram-jira-bot/internal/repository"
)

// IssueSource queries the external tracker for a subscriber's tickets with
// full change history, ordered by last update, bounded count.
type IssueSource interface {
	SearchTicketsWithHistory(ctx context.Context, identity domain.Identity) ([]domain.TrackedTicket, error)
}

// Notifier delivers a formatted message to a subscriber's chat.
type Notifier interface {
	Deliver(ctx context.Context, chatID int64, message string) error
}

// ReconcilerOptions tunes the reconciliation engine.
type ReconcilerOptions struct {
	LookbackWindow time.Duration
	MatchTolerance time.Duration
	RetryHorizon   time.Duration
}

// ReconcilerDependencies bundles collaborators for the reconciler.
type ReconcilerDependencies struct {
	SubscriberRepo   repository.SubscriberRepository
	TicketRepo       repository.TicketRepository
	StatusChangeRepo repository.StatusChangeRepository
	NotificationRepo repository.NotificationRepository
	Source           IssueSource
	Notifier         Notifier
	Dispatcher       events.Dispatcher
}

// Reconciler discovers recent status transitions in the tracker and delivers
// each one at most once per subscriber, using the status-change and
// notification ledgers for idempotence. Cycles hold no state of their own,
// so overlapping or manually triggered cycles are safe.
type Reconciler struct {
	subscribers   repository.SubscriberRepository
	tickets       repository.TicketRepository
	changes       repository.StatusChangeRepository
	notifications repository.NotificationRepository
	source        IssueSource
	notifier      Notifier
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	opts          ReconcilerOptions

	now func() time.Time
}

// NewReconciler constructs the engine, applying defaults for unset options.
func NewReconciler(deps ReconcilerDependencies, opts ReconcilerOptions, logger *zap.Logger) *Reconciler {
	if opts.LookbackWindow <= 0 {
		opts.LookbackWindow = 5 * time.Minute
	}
	if opts.MatchTolerance <= 0 {
		opts.MatchTolerance = time.Minute
	}
	if opts.RetryHorizon <= 0 {
		opts.RetryHorizon = 24 * time.Hour
	}
	return &Reconciler{
		subscribers:   deps.SubscriberRepo,
		tickets:       deps.TicketRepo,
		changes:       deps.StatusChangeRepo,
		notifications: deps.NotificationRepo,
		source:        deps.Source,
		notifier:      deps.Notifier,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
		opts:          opts,
		now:           time.Now,
	}
}

// RunReconciliationCycle performs one full pass over all enabled
// subscribers. Per-subscriber and per-ticket failures are logged and
// isolated; only the inability to list subscribers fails the cycle.
func (r *Reconciler) RunReconciliationCycle(ctx context.Context) error {
	subscribers, err := r.subscribers.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list enabled subscribers: %w", err)
	}

	for i := range subscribers {
		r.reconcileSubscriber(ctx, &subscribers[i])
	}

	r.publish(ctx, events.Event{Type: events.EventCycleCompleted})
	return nil
}

func (r *Reconciler) reconcileSubscriber(ctx context.Context, sub *domain.Subscriber) {
	tickets, err := r.source.SearchTicketsWithHistory(ctx, sub.Identity())
	if err != nil {
		// source unavailable: skip this subscriber, next cycle retries
		r.logger.Warn("issue source unavailable",
			zap.Int64("chat_id", sub.ChatID), zap.Error(err))
	} else {
		now := r.now()
		for i := range tickets {
			if err := r.reconcileTicket(ctx, sub, &tickets[i], now); err != nil {
				r.logger.Error("ticket reconciliation failed",
					zap.Int64("chat_id", sub.ChatID),
					zap.String("jira_key", tickets[i].JiraKey),
					zap.Error(err))
			}
		}
	}

	r.retryUnsent(ctx, sub)
}

func (r *Reconciler) reconcileTicket(ctx context.Context, sub *domain.Subscriber, ticket *domain.TrackedTicket, now time.Time) error {
	// Keep the mirror current before processing so the retry sweep and the
	// status upkeep below always have a row to work with.
	if err := r.tickets.Upsert(ctx, &domain.Ticket{
		JiraKey:        ticket.JiraKey,
		ChatID:         sub.ChatID,
		TelegramUserID: sub.TelegramUserID,
		Category:       ticket.Category,
		Title:          ticket.Title,
		Description:    ticket.Description,
		Status:         ticket.Status,
		Priority:       ticket.Priority,
		DueDate:        ticket.DueDate,
	}); err != nil {
		return fmt.Errorf("upsert ticket mirror: %w", err)
	}

	transitions := ExtractStatusTransitions(ticket, now, r.opts.LookbackWindow)
	for _, transition := range transitions {
		if err := r.processTransition(ctx, sub, ticket.Title, transition); err != nil {
			// transition abandoned for this cycle, no partial writes
			r.logger.Error("transition processing failed",
				zap.Int64("chat_id", sub.ChatID),
				zap.String("jira_key", transition.JiraKey),
				zap.String("old_status", transition.OldStatus),
				zap.String("new_status", transition.NewStatus),
				zap.Error(err))
		}
	}
	return nil
}

// processTransition is the two-layer deduplication described by the ledger
// design: the status-change ledger answers "has the tracker reported this
// change before", the notification ledger answers "has this subscriber been
// told". A transition can fan out to several subscribers, so the checks are
// independent.
func (r *Reconciler) processTransition(ctx context.Context, sub *domain.Subscriber, title string, transition domain.Transition) error {
	change := &domain.StatusChange{
		JiraKey:   transition.JiraKey,
		OldStatus: transition.OldStatus,
		NewStatus: transition.NewStatus,
		ChangedBy: transition.ChangedBy,
		ChangedAt: transition.ChangedAt,
	}
	created, err := r.changes.FindOrCreate(ctx, change, r.opts.MatchTolerance)
	if err != nil {
		return fmt.Errorf("record status change: %w", err)
	}
	if created {
		r.publish(ctx, events.Event{
			Type:      events.EventTransitionRecorded,
			JiraKey:   change.JiraKey,
			OldStatus: change.OldStatus,
			NewStatus: change.NewStatus,
		})
	}

	return r.notifySubscriber(ctx, sub, title, change)
}

// notifySubscriber delivers the change to one subscriber unless the
// notification ledger shows it already went out. On success the record is
// written before the status change is marked sent, so a crash in between
// leaves the notification ledger as the source of truth and a later cycle
// only repairs the mark.
func (r *Reconciler) notifySubscriber(ctx context.Context, sub *domain.Subscriber, title string, change *domain.StatusChange) error {
	sent, err := r.notifications.Exists(ctx, sub.ChatID, change.JiraKey,
		domain.NotificationTypeStatusChange, change.OldStatus, change.NewStatus)
	if err != nil {
		return fmt.Errorf("check notification ledger: %w", err)
	}
	if sent {
		if !change.NotificationSent {
			if err := r.changes.MarkNotificationSent(ctx, change.ID); err != nil {
				return fmt.Errorf("mark status change sent: %w", err)
			}
			change.NotificationSent = true
		}
		return nil
	}

	message := notifier.FormatStatusChange(title, change)
	if err := r.notifier.Deliver(ctx, sub.ChatID, message); err != nil {
		r.publish(ctx, events.Event{
			Type:      events.EventNotificationFailed,
			JiraKey:   change.JiraKey,
			ChatID:    sub.ChatID,
			OldStatus: change.OldStatus,
			NewStatus: change.NewStatus,
		})
		return fmt.Errorf("deliver notification: %w", err)
	}

	if _, err := r.notifications.Create(ctx, &domain.NotificationRecord{
		ChatID:   sub.ChatID,
		JiraKey:  change.JiraKey,
		Type:     domain.NotificationTypeStatusChange,
		OldValue: change.OldStatus,
		NewValue: change.NewStatus,
	}); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	if err := r.changes.MarkNotificationSent(ctx, change.ID); err != nil {
		return fmt.Errorf("mark status change sent: %w", err)
	}
	change.NotificationSent = true

	if err := r.tickets.UpdateStatus(ctx, change.JiraKey, change.NewStatus); err != nil {
		r.logger.Warn("ticket status upkeep failed",
			zap.String("jira_key", change.JiraKey), zap.Error(err))
	}

	r.publish(ctx, events.Event{
		Type:      events.EventNotificationSent,
		JiraKey:   change.JiraKey,
		ChatID:    sub.ChatID,
		OldStatus: change.OldStatus,
		NewStatus: change.NewStatus,
	})
	return nil
}

// retryUnsent re-attempts delivery of status changes that were recorded but
// never confirmed sent, until they age past the retry horizon. This keeps a
// delivery outage longer than the lookback window from losing transitions.
func (r *Reconciler) retryUnsent(ctx context.Context, sub *domain.Subscriber) {
	horizon := r.now().Add(-r.opts.RetryHorizon)
	pending, err := r.changes.ListUnsentForChat(ctx, sub.ChatID, horizon)
	if err != nil {
		r.logger.Error("list unsent status changes failed",
			zap.Int64("chat_id", sub.ChatID), zap.Error(err))
		return
	}

	for i := range pending {
		change := &pending[i]
		title := ""
		if ticket, err := r.tickets.GetByKey(ctx, change.JiraKey); err == nil {
			title = ticket.Title
		}
		if err := r.notifySubscriber(ctx, sub, title, change); err != nil {
			r.logger.Warn("retry delivery failed",
				zap.Int64("chat_id", sub.ChatID),
				zap.String("jira_key", change.JiraKey),
				zap.Error(err))
		}
	}
}

func (r *Reconciler) publish(ctx context.Context, event events.Event) {
	if r.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = r.now()
	_ = r.dispatcher.Publish(ctx, event)
}
