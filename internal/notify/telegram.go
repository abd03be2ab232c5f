package notify

import (
	"context"
	"errors"
	"fmt"

	tba "github.com/go-telegram-bot-api/telegram-bot-api"
)

var ErrNoRecipients = errors.New("no push recipients")

// botSender is the part of tba.BotAPI used for pushes.
type botSender interface {
	Send(c tba.Chattable) (tba.Message, error)
}

// Telegram delivers offline pushes as bot messages.
type Telegram struct {
	bot          botSender
	defaultChats []int64
}

// NewTelegram connects a bot with token. defaultChats receive pushes of
// dashboards whose notification widget lists no chats.
func NewTelegram(token string, defaultChats []int64) (*Telegram, error) {
	bot, err := tba.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &Telegram{bot: bot, defaultChats: defaultChats}, nil
}

// Push sends message to every chat. The first send error is returned after all chats were tried.
func (t *Telegram) Push(ctx context.Context, chatIDs []int64, message string) error {
	if len(chatIDs) == 0 {
		chatIDs = t.defaultChats
	}
	if len(chatIDs) == 0 {
		return ErrNoRecipients
	}

	var err error
	for _, c := range chatIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, e := t.bot.Send(tba.NewMessage(c, message)); e != nil && err == nil {
			err = fmt.Errorf("telegram send to %d: %w", c, e)
		}
	}
	return err
}

// Nop drops pushes. Used when no bot token is configured.
type Nop struct{}

func (Nop) Push(context.Context, []int64, string) error { return nil }
