package integration

import (
	"context"
	"fmt"
	"log"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender posts alerts to a single Telegram chat
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSender authorizes the bot token against the Telegram API
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	return newTelegramSender(token, chatID, tgbotapi.APIEndpoint, &http.Client{})
}

func newTelegramSender(token string, chatID int64, endpoint string, client tgbotapi.HTTPClient) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	log.Printf("Authorized on Telegram account %s", bot.Self.UserName)
	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

// Send posts the subject and body as one message
func (t *TelegramSender) Send(ctx context.Context, subject, body string) error {
	if err := ValidateMessage(subject, body); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, subject+"\n\n"+body)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
