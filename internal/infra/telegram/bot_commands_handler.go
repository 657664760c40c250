// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"
	"strings"

	"attendpro/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func RegisterBotCommands(b *telebot.Bot, accounts *app.AccountService, baseLogger *logrus.Entry) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if accounts.Authorize(senderID) == nil {
			return c.Send(fmt.Sprintf("Привет, %s! Я отправляю отчёты AttendPro о посещаемости. Используйте /help для списка команд.", c.Sender().FirstName))
		}
		logCtx.Info("User is not the admin")
		return c.Send("Привет! Я бот отчётов AttendPro. Команды доступны только администратору.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		if accounts.Authorize(senderID) != nil {
			return c.Send("Доступных команд для вас нет.")
		}
		var helpText strings.Builder
		helpText.WriteString("Доступные команды Администратора:\n\n")
		helpText.WriteString("`/report <email> [ГГГГ-ММ-ДД]`\n - Отправить отчёт аккаунта за день (по умолчанию сегодня).\n\n")
		helpText.WriteString("`/preview <email> [ГГГГ-ММ-ДД]`\n - Показать отчёт и отправить его кнопкой.\n\n")
		helpText.WriteString("`/status`\n - Состояние планировщика и интеграций.\n\n")
		helpText.WriteString("`/help`\n - Показать это справочное сообщение.")
		return c.Send(helpText.String(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})
}
