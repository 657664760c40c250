package telegram

import "context"

// Client delivers a plain-text report to the configured chat.
// This keeps the application logic independent of the bot library.
type Client interface {
	SendReport(ctx context.Context, text string) (messageID string, err error)
}
