// Package notify delivers human-readable alerts. Delivery is best effort:
// a failed send is logged and never blocks or fails the trading tick.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

type Config struct {
	BotToken string
	ChatID   string
}

// Telegram posts messages to a Telegram chat via the bot API.
type Telegram struct {
	client *resty.Client
	config Config
	logger *logrus.Logger
}

func NewTelegram(config Config, logger *logrus.Logger) *Telegram {
	client := resty.New()
	client.SetBaseURL("https://api.telegram.org")
	client.SetTimeout(10 * time.Second)

	return &Telegram{
		client: client,
		config: config,
		logger: logger,
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Send fires the message and forgets it. HTML markup is allowed.
func (t *Telegram) Send(ctx context.Context, msg string) {
	endpoint := fmt.Sprintf("/bot%s/sendMessage", t.config.BotToken)

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(sendMessageRequest{
			ChatID:    t.config.ChatID,
			Text:      msg,
			ParseMode: "HTML",
		}).
		Post(endpoint)
	if err != nil {
		t.logger.WithError(err).Warn("Telegram send failed")
		return
	}
	if resp.IsError() {
		t.logger.WithField("status", resp.StatusCode()).Warn("Telegram send rejected")
	}
}
