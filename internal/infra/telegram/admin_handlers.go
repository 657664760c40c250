package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"attendpro/internal/app"
	"attendpro/internal/domain/account"
	"attendpro/internal/domain/training"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	commandTimeout   = 30 * time.Second
	msgUnauthorized  = "Ошибка: У вас нет прав для выполнения этой команды."
	previewDataSep   = "|"
	previewUniqueTag = "rep_send"
)

// ReportService is what the bot needs to preview and send reports.
type ReportService interface {
	Preview(ctx context.Context, email string, date training.Date) (*account.Record, training.Date, string, error)
	SendNow(ctx context.Context, email string, date training.Date) (app.DispatchResult, error)
}

// StatusProvider exposes scheduler health.
type StatusProvider interface {
	Snapshot() app.SchedulerSnapshot
}

// parseReportArgs reads "<email> [YYYY-MM-DD]".
func parseReportArgs(args []string) (string, training.Date, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", training.Date{}, fmt.Errorf("wrong argument count")
	}
	email := strings.TrimSpace(args[0])
	if email == "" {
		return "", training.Date{}, fmt.Errorf("email is empty")
	}
	var date training.Date
	if len(args) == 2 {
		d, err := training.ParseDate(args[1])
		if err != nil {
			return "", training.Date{}, err
		}
		date = d
	}
	return email, date, nil
}

// RegisterAdminHandlers registers /report, /preview and /status for the configured admin.
func RegisterAdminHandlers(b *telebot.Bot, accounts *app.AccountService, reports ReportService, status StatusProvider, baseLogger *logrus.Entry) {
	b.Handle("/report", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/report",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if err := accounts.Authorize(c.Sender().ID); err != nil {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(msgUnauthorized)
		}

		email, date, err := parseReportArgs(c.Args())
		if err != nil {
			handlerLogger.WithError(err).Warn("Invalid command format")
			return c.Send("Неверный формат команды. Используйте: /report <email> [ГГГГ-ММ-ДД]")
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		res, err := reports.SendNow(ctx, email, date)
		return c.Send(describeSend(handlerLogger.WithField("account", email), res, err))
	})

	b.Handle("/preview", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/preview",
			"sender_id": c.Sender().ID,
		})
		if err := accounts.Authorize(c.Sender().ID); err != nil {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(msgUnauthorized)
		}

		email, date, err := parseReportArgs(c.Args())
		if err != nil {
			return c.Send("Неверный формат команды. Используйте: /preview <email> [ГГГГ-ММ-ДД]")
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		rec, date, text, err := reports.Preview(ctx, email, date)
		if err != nil {
			if errors.Is(err, app.ErrNotFound) {
				return c.Send(fmt.Sprintf("Аккаунт %s не найден.", email))
			}
			handlerLogger.WithError(err).Error("Failed to build preview")
			return c.Send(fmt.Sprintf("Не удалось построить отчёт: %s", err.Error()))
		}

		markup := &telebot.ReplyMarkup{}
		btnSend := markup.Data("Отправить", previewUniqueTag, date.String()+previewDataSep+rec.Email)
		markup.Inline(markup.Row(btnSend))
		return c.Send(text, &telebot.SendOptions{ReplyMarkup: markup, DisableWebPagePreview: true})
	})

	b.Handle("/status", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/status",
			"sender_id": c.Sender().ID,
		})
		if err := accounts.Authorize(c.Sender().ID); err != nil {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(msgUnauthorized)
		}
		return c.Send(formatStatus(status.Snapshot()))
	})
}

func describeSend(log *logrus.Entry, res app.DispatchResult, err error) string {
	switch {
	case err == nil && res.Duplicate:
		log.Info("Report already sent for this key")
		return "Отчёт за этот день уже был отправлен."
	case err == nil:
		log.WithField("message_id", res.MessageID).Info("Report sent")
		return "Отчёт отправлен в Telegram."
	case errors.Is(err, app.ErrNotFound):
		log.WithError(err).Warn("Account not found")
		return "Аккаунт не найден."
	case errors.Is(err, app.ErrValidation):
		log.WithError(err).Warn("Report rejected")
		return fmt.Sprintf("Отчёт не может быть отправлен: %s", err.Error())
	default:
		log.WithError(err).Error("Failed to send report")
		return fmt.Sprintf("Не удалось отправить отчёт: %s", err.Error())
	}
}

func formatStatus(s app.SchedulerSnapshot) string {
	var b strings.Builder
	state := "выключен"
	if s.Enabled {
		state = "включён"
	}
	fmt.Fprintf(&b, "Планировщик: %s (%s, %s)\n", state, s.Mode, s.Spec)
	fmt.Fprintf(&b, "Последний запуск: %s\n", formatTime(s.LastRunAt))
	fmt.Fprintf(&b, "Последний успех: %s\n", formatTime(s.LastSuccessAt))
	if s.LastErrorAt != nil {
		fmt.Fprintf(&b, "Последняя ошибка: %s (%s)\n", formatTime(s.LastErrorAt), s.LastError)
	}
	fmt.Fprintf(&b, "Отправлено отчётов: %d\n", s.Dispatched)
	for _, name := range s.IntegrationNames() {
		mark := "нет"
		if s.Integrations[name] {
			mark = "да"
		}
		fmt.Fprintf(&b, "%s: %s\n", name, mark)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "нет"
	}
	return t.Format("02.01.2006 15:04:05")
}
