// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements the domain Client interface using the gopkg.in/telebot.v3 library.
// Reports go to one configured chat, optionally into a forum thread.
type TelebotAdapter struct {
	bot      *telebot.Bot
	chatID   int64
	threadID int
}

func NewTelebotAdapter(b *telebot.Bot, chatID int64, threadID int) *TelebotAdapter {
	return &TelebotAdapter{bot: b, chatID: chatID, threadID: threadID}
}

// NewBot builds a long-polling bot. Offline skips the getMe call, for tests and CLI use.
func NewBot(token string, offline bool, logger *logrus.Entry) (*telebot.Bot, error) {
	b, err := telebot.NewBot(telebot.Settings{
		Token:   token,
		Poller:  &telebot.LongPoller{Timeout: 10 * time.Second},
		Offline: offline,
		OnError: func(err error, c telebot.Context) {
			entry := logger.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID, "text": c.Text()})
			}
			entry.Error("Telebot handler error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return b, nil
}

// SendReport sends a plain-text message and returns the Telegram message id.
func (tba *TelebotAdapter) SendReport(ctx context.Context, text string) (string, error) {
	if tba.chatID == 0 {
		return "", fmt.Errorf("telegram chat id is not configured")
	}
	opts := &telebot.SendOptions{
		DisableWebPagePreview: true,
		AllowWithoutReply:     true,
	}
	if tba.threadID > 0 {
		opts.ThreadID = tba.threadID
	}

	type sent struct {
		msg *telebot.Message
		err error
	}
	done := make(chan sent, 1)
	go func() {
		msg, err := tba.bot.Send(telebot.ChatID(tba.chatID), text, opts)
		done <- sent{msg: msg, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("telegram send failed: %w", res.err)
		}
		return strconv.Itoa(res.msg.ID), nil
	}
}
