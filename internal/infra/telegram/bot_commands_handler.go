// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"password_expiry_notifier/internal/app"
)

// RunStatus is what the resident scheduler knows about its runs.
type RunStatus interface {
	Last() (*app.RunSummary, error)
	Next() time.Time
}

// RegisterBotCommands wires /status and /help for the summary chat. Other chats get nothing.
func RegisterBotCommands(b *telebot.Bot, status RunStatus, adminChatID int64, baseLogger *logrus.Entry) {
	logger := baseLogger.WithField("handler_group", "admin")

	b.Handle("/status", func(c telebot.Context) error {
		logCtx := logger.WithField("command", "/status").WithField("chat_id", c.Chat().ID)
		if c.Chat().ID != adminChatID {
			logCtx.Warn("Unauthorized access attempt")
			return nil
		}
		logCtx.Info("Processing /status command")
		return c.Send(StatusText(status))
	})

	b.Handle("/help", func(c telebot.Context) error {
		if c.Chat().ID != adminChatID {
			return nil
		}
		return c.Send(HelpText())
	})
}

// StatusText renders the last run for a chat reply.
func StatusText(status RunStatus) string {
	var b strings.Builder
	last, err := status.Last()
	switch {
	case err != nil:
		fmt.Fprintf(&b, "Last run failed: %v\n", err)
	case last == nil:
		b.WriteString("No run has finished yet.\n")
	default:
		b.WriteString(last.Text())
	}
	if next := status.Next(); !next.IsZero() {
		fmt.Fprintf(&b, "Next run: %s", next.Format("2006-01-02 15:04 MST"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func HelpText() string {
	var helpText strings.Builder
	helpText.WriteString("Available commands:\n\n")
	helpText.WriteString("/status - summary of the last password expiry run and the next scheduled one.\n")
	helpText.WriteString("/help - show this message.")
	return helpText.String()
}
