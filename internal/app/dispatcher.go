package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"password_expiry_notifier/internal/domain/mail"
	"password_expiry_notifier/internal/domain/notification"
)

var ErrNoSimulationRecipients = errors.New("simulation mode requires at least one override recipient")

// DispatcherConfig controls where and how fast mail goes out.
type DispatcherConfig struct {
	RunMode              notification.RunMode
	From                 string
	SimulationRecipients []string
	MaxPerSecond         float64 // 0 disables pacing
}

// NotificationDispatcher delivers composed messages. In simulation mode the
// account's own address is never used: mail goes to the override list.
type NotificationDispatcher struct {
	sender  mail.Sender
	cfg     DispatcherConfig
	limiter *rate.Limiter
	banner  func(recipient string) (string, error)
	logger  *logrus.Entry
}

func NewNotificationDispatcher(sender mail.Sender, cfg DispatcherConfig, banner func(string) (string, error), logger *logrus.Entry) (*NotificationDispatcher, error) {
	if cfg.RunMode == notification.RunModeSimulate && len(cfg.SimulationRecipients) == 0 {
		return nil, ErrNoSimulationRecipients
	}
	d := &NotificationDispatcher{
		sender: sender,
		cfg:    cfg,
		banner: banner,
		logger: logger,
	}
	if cfg.MaxPerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.MaxPerSecond), 1)
	}
	return d, nil
}

// Dispatch sends msg for the account mailbox accountEmail and returns the
// recipients actually used. Nothing is sent in report-only mode.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, accountEmail string, msg *ComposedMessage) ([]string, error) {
	if d.cfg.RunMode == notification.RunModeReportOnly {
		return nil, nil
	}

	recipients := []string{accountEmail}
	body := msg.Body
	if d.cfg.RunMode == notification.RunModeSimulate {
		recipients = append([]string(nil), d.cfg.SimulationRecipients...)
		if d.banner != nil {
			banner, err := d.banner(accountEmail)
			if err != nil {
				return nil, fmt.Errorf("failed to render simulation banner: %w", err)
			}
			body = banner + body
		}
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return recipients, fmt.Errorf("send pacing interrupted: %w", err)
		}
	}

	err := d.sender.Send(ctx, &mail.Message{
		From:    d.cfg.From,
		To:      recipients,
		Subject: msg.Subject,
		Body:    body,
		IsHTML:  true,
	})
	if err != nil {
		return recipients, fmt.Errorf("failed to send mail to %v: %w", recipients, err)
	}
	d.logger.WithField("recipients", recipients).Debug("Mail sent")
	return recipients, nil
}
