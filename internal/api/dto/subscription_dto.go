package dto

import "time"

// EnableSubscriptionRequest carries the Telegram identity at opt-in.
type EnableSubscriptionRequest struct {
	TelegramUserID int64  `json:"telegram_user_id"`
	Username       string `json:"username"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
}

// SubscriptionResponse reports subscriber state.
type SubscriptionResponse struct {
	ChatID               int64     `json:"chat_id"`
	Username             string    `json:"username,omitempty"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// LoginRequest carries admin credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse returns the bearer token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UnsentResponse reports the undelivered status-change backlog.
type UnsentResponse struct {
	Unsent int64 `json:"unsent"`
}
