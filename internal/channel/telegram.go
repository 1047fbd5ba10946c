package channel

import (
	"context"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/duskline/crosstalk/internal/bus"
	"github.com/duskline/crosstalk/internal/config"
)

// TelegramBot abstracts the bot API for testing.
type TelegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

// tgBotWrapper wraps the real bot API client.
type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates a TelegramBot from a token.
type BotFactory func(token string) (TelegramBot, error)

func defaultBotFactory(token string) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// Telegram mirrors the show to a single chat.
type Telegram struct {
	token      string
	chatID     int64
	bot        TelegramBot
	botFactory BotFactory
}

func NewTelegram(cfg config.TelegramConfig) (*Telegram, error) {
	return NewTelegramWithFactory(cfg, defaultBotFactory)
}

// NewTelegramWithFactory allows injecting a mock bot for tests.
func NewTelegramWithFactory(cfg config.TelegramConfig, factory BotFactory) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat_id is required")
	}
	if factory == nil {
		factory = defaultBotFactory
	}
	return &Telegram{
		token:      cfg.Token,
		chatID:     cfg.ChatID,
		botFactory: factory,
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Start(ctx context.Context) error {
	bot, err := t.botFactory(t.token)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	log.Printf("[telegram] authorized as @%s", bot.GetSelf().UserName)
	return nil
}

func (t *Telegram) Stop() error { return nil }

// Deliver sends one turn as a bold-speaker HTML message, split into
// chunks under the Telegram message size limit. A chunk rejected as
// HTML is retried as plain text.
func (t *Telegram) Deliver(event bus.TurnEvent) error {
	if t.bot == nil {
		return fmt.Errorf("telegram channel not started")
	}

	content := fmt.Sprintf("<b>%s</b>\n%s", escapeHTML(event.Turn.Speaker), escapeHTML(event.Turn.Text))

	const maxLen = 4000
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			// Prefer splitting at a line break.
			if idx := strings.LastIndex(chunk[:maxLen], "\n"); idx > 0 {
				chunk = chunk[:idx]
			} else {
				chunk = chunk[:maxLen]
			}
		}
		content = strings.TrimPrefix(content[len(chunk):], "\n")

		msg := tgbotapi.NewMessage(t.chatID, chunk)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := t.bot.Send(msg); err != nil {
			log.Printf("[telegram] HTML send failed, retrying as plain text: %v", err)
			msg.ParseMode = ""
			if _, err := t.bot.Send(msg); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		}
	}
	return nil
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
