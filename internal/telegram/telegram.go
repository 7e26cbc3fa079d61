// Package telegram is an optional second delivery channel. Disabled by
// default; enable it in config with a bot token and target chat id.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"
)

type Config struct {
	Token  string
	ChatID int64
}

type Notifier struct {
	bot    *tele.Bot
	chatID int64
	log    zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) (*Notifier, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, errors.New("telegram: token and chat id are required")
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Notifier{bot: bot, chatID: cfg.ChatID, log: log}, nil
}

func (n *Notifier) Name() string { return "telegram" }

// Send posts one message to the configured chat. Mirrors the webhook
// sink's contract: failures reduce to false, never an error.
func (n *Notifier) Send(ctx context.Context, message string) bool {
	if message == "" {
		return false
	}
	_, err := n.bot.Send(tele.ChatID(n.chatID), message, &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		n.log.Warn().Err(err).Int64("chat_id", n.chatID).Msg("telegram delivery failed")
		return false
	}
	return true
}
