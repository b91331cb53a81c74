package sink

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	"alertd/internal/notifier"
)

// Telegram mirrors notifications into a chat (optionally a forum topic).
type Telegram struct {
	bot      *tele.Bot
	chatID   int64
	threadID int
}

func NewTelegram(token string, chatID int64, threadID int) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	// Offline: the mirror only sends, it never polls or calls getMe.
	b, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: chatID, threadID: threadID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Show(ctx context.Context, n notifier.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var sb strings.Builder
	if n.High() {
		sb.WriteString("🚨 ")
	}
	sb.WriteString(n.Title)
	if n.Body != "" {
		sb.WriteString("\n")
		sb.WriteString(n.Body)
	}
	_, err := t.bot.Send(&tele.Chat{ID: t.chatID}, sb.String(), &tele.SendOptions{
		ThreadID:            t.threadID,
		DisableNotification: n.Silent,
	})
	return err
}
