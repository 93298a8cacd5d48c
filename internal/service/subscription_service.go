package service

import (
	"context"

	"github.com/leanrobert/telegram-jira-bot/internal/domain"
	"github.com/leanrobert/telegram-jira-bot/internal/repository"
)

// SubscriptionService manages notification opt-in state. Both operations are
// idempotent; subscribers are never deleted, only flagged off.
type SubscriptionService struct {
	subscribers repository.SubscriberRepository
}

// NewSubscriptionService constructs the service.
func NewSubscriptionService(subscribers repository.SubscriberRepository) *SubscriptionService {
	return &SubscriptionService{subscribers: subscribers}
}

// EnableNotifications records the subscriber's identity and turns
// notifications on.
func (s *SubscriptionService) EnableNotifications(ctx context.Context, sub *domain.Subscriber) error {
	if err := s.subscribers.Upsert(ctx, sub); err != nil {
		return err
	}
	if err := s.subscribers.SetNotificationsEnabled(ctx, sub.ChatID, true); err != nil {
		return err
	}
	sub.NotificationsEnabled = true
	return nil
}

// DisableNotifications turns notifications off. Unknown chats are a no-op.
func (s *SubscriptionService) DisableNotifications(ctx context.Context, chatID int64) error {
	return s.subscribers.SetNotificationsEnabled(ctx, chatID, false)
}

// GetSubscriber returns the stored subscriber state.
func (s *SubscriptionService) GetSubscriber(ctx context.Context, chatID int64) (*domain.Subscriber, error) {
	return s.subscribers.GetByChatID(ctx, chatID)
}
