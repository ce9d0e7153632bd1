package telegram

import "gopkg.in/telebot.v3"

// Client defines an interface for sending messages via a Telegram bot.
// The notifier only uses it to push the end-of-run summary to an administrator chat.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}
