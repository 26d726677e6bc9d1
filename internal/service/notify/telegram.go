package notify

import (
	"context"
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"SignalEngine/pkg/queue"
)

// sender is the part of tgbotapi.BotAPI used for delivery.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramJob delivers one alert type to a chat.
type TelegramJob struct {
	bot     sender
	chatID  int64
	msgType string
}

// NewTelegramBot authenticates against the Bot API.
func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return bot, nil
}

// TelegramJobs returns a job for every alert type.
func TelegramJobs(bot sender, chatID int64) []queue.Job {
	return []queue.Job{
		&TelegramJob{bot: bot, chatID: chatID, msgType: TypeTakeProfit},
		&TelegramJob{bot: bot, chatID: chatID, msgType: TypeStopLoss},
	}
}

func (j *TelegramJob) Name() string { return "telegram:" + j.msgType }

func (j *TelegramJob) Type() string { return j.msgType }

func (j *TelegramJob) Handle(_ context.Context, payload json.RawMessage) error {
	a, err := queue.Decode[Alert](payload)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(j.chatID, FormatAlert(*a))
	if _, err := j.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
