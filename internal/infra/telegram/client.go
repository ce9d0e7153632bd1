// internal/infra/telegram/client.go
package telegram

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements the Client interface using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// NewBot builds the bot used for run summaries. With poll set it long-polls for
// admin commands; otherwise it only sends.
func NewBot(token string, poll bool, log *logrus.Entry) (*telebot.Bot, error) {
	pref := telebot.Settings{
		Token:   token,
		Offline: !poll,
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := log.WithError(err)
			if c != nil && c.Chat() != nil {
				entry = entry.WithField("chat_id", c.Chat().ID)
			}
			entry.Error("Telegram bot error")
		},
	}
	if poll {
		pref.Poller = &telebot.LongPoller{Timeout: 10 * time.Second}
	}
	b, err := telebot.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("could not create Telegram bot: %w", err)
	}
	return b, nil
}

// SendMessage sends a text message to the specified chat.
func (tba *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{DisableWebPagePreview: true}
	}

	recipient := &telebot.Chat{ID: recipientChatID} // Summary chats may be groups
	_, err := tba.bot.Send(recipient, text, options)
	return err
}
