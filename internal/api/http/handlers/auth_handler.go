package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/leanrobert/telegram-jira-bot/internal/api/dto"
	"github.com/leanrobert/telegram-jira-bot/internal/auth"
	"github.com/leanrobert/telegram-jira-bot/internal/config"
	apperrors "github.com/leanrobert/telegram-jira-bot/pkg/util"
)

// AuthHandler issues admin tokens.
type AuthHandler struct {
	cfg    config.AdminConfig
	tokens *auth.TokenManager
}

// NewAuthHandler constructs handler.
func NewAuthHandler(cfg config.AdminConfig, tokens *auth.TokenManager) *AuthHandler {
	return &AuthHandler{cfg: cfg, tokens: tokens}
}

// Login POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if h.cfg.PasswordHash == "" {
		return apperrors.NewUnauthorized("admin login disabled")
	}
	if req.Username != h.cfg.Username {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	if err := auth.ComparePassword(h.cfg.PasswordHash, req.Password); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := h.tokens.GenerateToken(req.Username)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": dto.LoginResponse{Token: token, ExpiresAt: expiresAt}})
}
