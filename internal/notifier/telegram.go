// Package notifier delivers formatted messages to subscribers over Telegram.
package notifier

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/leanrobert/telegram-jira-bot/internal/config"
)

// TelegramNotifier sends Markdown messages through the bot API.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	logger *zap.Logger
}

// NewTelegramNotifier authenticates the bot.
func NewTelegramNotifier(cfg config.TelegramConfig, logger *zap.Logger) (*TelegramNotifier, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	logger.Info("connected to telegram", zap.String("bot", bot.Self.UserName))
	return &TelegramNotifier{bot: bot, logger: logger}, nil
}

// Deliver sends the message to the chat. Any API error means the
// notification is not considered sent; the caller decides whether to retry.
func (n *TelegramNotifier) Deliver(ctx context.Context, chatID int64, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, message)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
