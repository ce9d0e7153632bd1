package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"password_expiry_notifier/internal/domain/account"
	"password_expiry_notifier/internal/domain/notification"
	"password_expiry_notifier/internal/infra/locale"
)

// localeDivider separates the per-locale blocks of a multi-locale body.
const localeDivider = "\n<hr>\n"

// ComposerOptions carries the organisation-specific values injected into every message.
type ComposerOptions struct {
	InternalDomains []string
	Organization    string
	ChangeURL       string
}

// ComposedMessage is the rendered subject/body for one account.
type ComposedMessage struct {
	Template notification.Template
	Audience notification.Audience
	Subject  string
	Body     string
}

// MessageComposer renders notification mails in one or more locales.
type MessageComposer struct {
	phrases   []*locale.Phrases // In requested order; the first one drives the subject
	opts      ComposerOptions
	sanitizer *bluemonday.Policy
}

// NewMessageComposer loads and validates the phrase bundles for tags.
// An unknown or incomplete locale fails here, before any account is processed.
func NewMessageComposer(tags []locale.Tag, opts ComposerOptions) (*MessageComposer, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: no locale requested", locale.ErrUnsupportedLocale)
	}
	catalog, err := locale.NewCatalog(tags)
	if err != nil {
		return nil, err
	}

	phrases := make([]*locale.Phrases, 0, len(tags))
	for _, tag := range tags {
		phrases = append(phrases, catalog.Phrases(tag))
	}
	return &MessageComposer{
		phrases:   phrases,
		opts:      opts,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

// Compose builds the message for a selected account.
func (c *MessageComposer) Compose(ev *account.Evaluated, decision notification.Decision, now time.Time) (*ComposedMessage, error) {
	msg := &ComposedMessage{
		Template: notification.SelectTemplate(ev, now),
		Audience: notification.ClassifyAudience(ev.Record.Email, c.opts.InternalDomains),
	}

	blocks := make([]string, 0, len(c.phrases))
	for i, p := range c.phrases {
		data, err := c.templateData(p, ev, decision, now)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			msg.Subject, err = p.Text(locale.SubjectID(msg.Template, msg.Audience), data)
			if err != nil {
				return nil, err
			}
		}
		block, err := c.renderBlock(p, msg.Template, msg.Audience, data, ev)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	msg.Body = strings.Join(blocks, localeDivider)
	return msg, nil
}

// SimulationBanner renders the note prepended to simulated mails, in the first locale.
func (c *MessageComposer) SimulationBanner(recipient string) (string, error) {
	text, err := c.phrases[0].Text(locale.MsgSimulationBanner, map[string]interface{}{
		"Recipient": c.sanitizer.Sanitize(recipient),
	})
	if err != nil {
		return "", err
	}
	return "<p><i>" + text + "</i></p>\n<hr>\n", nil
}

func (c *MessageComposer) templateData(p *locale.Phrases, ev *account.Evaluated, decision notification.Decision, now time.Time) (map[string]interface{}, error) {
	rec := ev.Record
	name := rec.DisplayName
	if strings.TrimSpace(name) == "" {
		name = rec.ID
	}

	data := map[string]interface{}{
		"Name":         c.sanitizer.Sanitize(name),
		"AccountID":    c.sanitizer.Sanitize(rec.ID),
		"Organization": c.opts.Organization,
		"ChangeURL":    c.opts.ChangeURL,
	}

	if ev.HasExpiry {
		expires := ev.ExpiresOn.In(now.Location())
		date, err := p.Date(expires)
		if err != nil {
			return nil, err
		}
		daysLeft, err := p.Days(notification.CalendarDaysUntil(expires, now))
		if err != nil {
			return nil, err
		}
		data["Date"] = date
		data["Time"] = p.Clock(expires)
		data["DaysLeft"] = daysLeft
	}

	if !decision.ForcedExpiry.IsZero() {
		forced := decision.ForcedExpiry.In(now.Location())
		date, err := p.Date(forced)
		if err != nil {
			return nil, err
		}
		data["ForcedDate"] = date
		data["ForcedTime"] = p.Clock(forced)
	}

	if days := rec.Policy.MaxAgeDays(); days > 0 {
		policyDays, err := p.Days(days)
		if err != nil {
			return nil, err
		}
		data["PolicyDays"] = policyDays
	}
	return data, nil
}

func (c *MessageComposer) renderBlock(p *locale.Phrases, tpl notification.Template, audience notification.Audience, data map[string]interface{}, ev *account.Evaluated) (string, error) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<div lang=\"%s\">\n", p.Tag()))

	if len(c.phrases) > 1 {
		name, err := p.Text(locale.MsgLanguageName, nil)
		if err != nil {
			return "", err
		}
		b.WriteString("<p><small>" + name + "</small></p>\n")
	}

	ids := []string{locale.GreetingID(audience), locale.BodyID(tpl, audience)}
	if _, ok := data["PolicyDays"]; ok {
		ids = append(ids, locale.MsgPolicyRenewalPeriod)
	}
	if audience == notification.AudienceInternal || c.opts.ChangeURL != "" {
		ids = append(ids, locale.ChangeInstructionsID(audience))
	}
	ids = append(ids, locale.MsgSignature)

	for _, id := range ids {
		text, err := p.Text(id, data)
		if err != nil {
			return "", fmt.Errorf("account %s: %w", ev.Record.ID, err)
		}
		b.WriteString("<p>" + text + "</p>\n")
	}
	b.WriteString("</div>")
	return b.String(), nil
}
