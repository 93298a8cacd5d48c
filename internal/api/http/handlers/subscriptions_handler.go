package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/leanrobert/telegram-jira-bot/internal/api/dto"
	"github.com/leanrobert/telegram-jira-bot/internal/domain"
	"github.com/leanrobert/telegram-jira-bot/internal/service"
	apperrors "github.com/leanrobert/telegram-jira-bot/pkg/util"
)

// SubscriptionsHandler exposes the notification opt-in toggles to the
// surrounding bot application.
type SubscriptionsHandler struct {
	service *service.SubscriptionService
}

// NewSubscriptionsHandler constructs handler.
func NewSubscriptionsHandler(subscriptionService *service.SubscriptionService) *SubscriptionsHandler {
	return &SubscriptionsHandler{service: subscriptionService}
}

// Enable POST /subscriptions/:chatID/enable.
func (h *SubscriptionsHandler) Enable(c *fiber.Ctx) error {
	chatID, err := parseChatID(c)
	if err != nil {
		return err
	}
	var req dto.EnableSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Username == "" && req.FirstName == "" {
		return apperrors.NewValidationError("username or first_name required", nil)
	}

	sub := &domain.Subscriber{
		ChatID:         chatID,
		TelegramUserID: req.TelegramUserID,
		Username:       req.Username,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
	}
	if err := h.service.EnableNotifications(c.Context(), sub); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": subscriptionResponse(sub)})
}

// Disable POST /subscriptions/:chatID/disable.
func (h *SubscriptionsHandler) Disable(c *fiber.Ctx) error {
	chatID, err := parseChatID(c)
	if err != nil {
		return err
	}
	if err := h.service.DisableNotifications(c.Context(), chatID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"chat_id": chatID, "notifications_enabled": false}})
}

// Get GET /subscriptions/:chatID.
func (h *SubscriptionsHandler) Get(c *fiber.Ctx) error {
	chatID, err := parseChatID(c)
	if err != nil {
		return err
	}
	sub, err := h.service.GetSubscriber(c.Context(), chatID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": subscriptionResponse(sub)})
}

func parseChatID(c *fiber.Ctx) (int64, error) {
	chatID, err := strconv.ParseInt(c.Params("chatID"), 10, 64)
	if err != nil {
		return 0, apperrors.NewValidationError("invalid chat id", nil)
	}
	return chatID, nil
}

func subscriptionResponse(sub *domain.Subscriber) dto.SubscriptionResponse {
	return dto.SubscriptionResponse{
		ChatID:               sub.ChatID,
		Username:             sub.Username,
		NotificationsEnabled: sub.NotificationsEnabled,
		UpdatedAt:            sub.UpdatedAt,
	}
}
