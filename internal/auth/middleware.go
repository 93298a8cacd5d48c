package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/leanrobert/telegram-jira-bot/pkg/util"
)

const principalKey = "auth_principal"

// AuthMiddleware validates bearer tokens on protected admin routes.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, claims.Username)
	return c.Next()
}

// UsernameFromContext retrieves the authenticated admin username.
func UsernameFromContext(c *fiber.Ctx) (string, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return "", false
	}
	username, ok := val.(string)
	return username, ok
}
