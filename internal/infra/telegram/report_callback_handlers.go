// internal/infra/telegram/report_callback_handlers.go
package telegram

import (
	"context"
	"fmt"
	"strings"

	"attendpro/internal/app"
	"attendpro/internal/domain/training"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// parsePreviewData splits the "<date>|<email>" payload of the send button.
func parsePreviewData(data string) (training.Date, string, error) {
	parts := strings.SplitN(data, previewDataSep, 2)
	if len(parts) != 2 || parts[1] == "" {
		return training.Date{}, "", fmt.Errorf("invalid callback data format: %s", data)
	}
	date, err := training.ParseDate(parts[0])
	if err != nil {
		return training.Date{}, "", err
	}
	return date, parts[1], nil
}

// RegisterReportCallbackHandlers handles the "Отправить" button under a /preview message.
func RegisterReportCallbackHandlers(b *telebot.Bot, accounts *app.AccountService, reports ReportService, baseLogger *logrus.Entry) {
	btn := (&telebot.ReplyMarkup{}).Data("Отправить", previewUniqueTag)
	b.Handle(&btn, func(c telebot.Context) error {
		log := baseLogger.WithFields(logrus.Fields{"handler": previewUniqueTag, "sender_id": c.Sender().ID})
		if err := accounts.Authorize(c.Sender().ID); err != nil {
			log.Warn("Unauthorized callback")
			return c.Respond(&telebot.CallbackResponse{Text: msgUnauthorized})
		}

		date, email, err := parsePreviewData(c.Callback().Data)
		if err != nil {
			c.Bot().OnError(err, c)
			return c.Respond(&telebot.CallbackResponse{Text: "Ошибка обработки ответа."})
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		res, err := reports.SendNow(ctx, email, date)
		return c.Respond(&telebot.CallbackResponse{Text: describeSend(log.WithField("account", email), res, err)})
	})
}
