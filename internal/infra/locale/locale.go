// internal/infra/locale/locale.go
package locale

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"password_expiry_notifier/internal/domain/notification"
)

//go:embed locales/*.toml
var localeFS embed.FS

// Tag is one of the locales the notifier ships phrase bundles for.
type Tag string

const (
	English Tag = "en"
	French  Tag = "fr"
	German  Tag = "de"
)

// Supported lists every locale with an embedded phrase bundle.
var Supported = []Tag{English, French, German}

var (
	ErrUnsupportedLocale = errors.New("unsupported locale")
	ErrMissingPhrase     = errors.New("phrase bundle is missing a required message")
)

// Parse maps a BCP 47 tag such as "fr-CH" onto a supported locale by its base language.
func Parse(s string) (Tag, error) {
	parsed, err := language.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrUnsupportedLocale, s, err)
	}
	base, _ := parsed.Base()
	for _, tag := range Supported {
		if base.String() == string(tag) {
			return tag, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnsupportedLocale, s)
}

// ParseList parses a comma separated list of locale tags, keeping order and dropping duplicates.
func ParseList(s string) ([]Tag, error) {
	var tags []Tag
	seen := make(map[Tag]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		tag, err := Parse(part)
		if err != nil {
			return nil, err
		}
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: no locale given", ErrUnsupportedLocale)
	}
	return tags, nil
}

var templateKeys = map[notification.Template]string{
	notification.TemplateNewUser:   "new_user",
	notification.TemplateExpired:   "expired",
	notification.TemplateToday:     "today",
	notification.TemplateTomorrow:  "tomorrow",
	notification.TemplateInFewDays: "in_few_days",
}

var audiences = []notification.Audience{notification.AudienceInternal, notification.AudienceExternal}

// SubjectID is the message id of the subject line for a template and audience.
func SubjectID(t notification.Template, a notification.Audience) string {
	return "subject_" + templateKeys[t] + "_" + string(a)
}

// BodyID is the message id of the main body paragraph for a template and audience.
func BodyID(t notification.Template, a notification.Audience) string {
	return "body_" + templateKeys[t] + "_" + string(a)
}

// GreetingID and ChangeInstructionsID vary by audience only.
func GreetingID(a notification.Audience) string           { return "greeting_" + string(a) }
func ChangeInstructionsID(a notification.Audience) string { return "change_instructions_" + string(a) }

const (
	MsgDaysCount           = "days_count"
	MsgPolicyRenewalPeriod = "policy_renewal_period"
	MsgSignature           = "signature"
	MsgDateFormat          = "date_format"
	MsgLanguageName        = "language_name"
	MsgSimulationBanner    = "simulation_banner"
)

// RequiredMessageIDs lists every message a phrase bundle must define.
func RequiredMessageIDs() []string {
	ids := []string{MsgDaysCount, MsgPolicyRenewalPeriod, MsgSignature, MsgDateFormat, MsgLanguageName, MsgSimulationBanner}
	for _, a := range audiences {
		ids = append(ids, GreetingID(a), ChangeInstructionsID(a))
		for t := range templateKeys {
			ids = append(ids, SubjectID(t, a), BodyID(t, a))
		}
	}
	for m := 1; m <= 12; m++ {
		ids = append(ids, monthID(time.Month(m)))
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		ids = append(ids, weekdayID(d))
	}
	return ids
}

func monthID(m time.Month) string     { return fmt.Sprintf("month_%02d", int(m)) }
func weekdayID(d time.Weekday) string { return fmt.Sprintf("weekday_%d", int(d)) }

// Catalog holds the validated phrase bundles.
type Catalog struct {
	bundle *i18n.Bundle
}

// NewCatalog loads the embedded phrase bundles for tags and checks that each defines
// every required message. An incomplete bundle is a configuration error.
func NewCatalog(tags []Tag) (*Catalog, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, tag := range tags {
		path := fmt.Sprintf("locales/active.%s.toml", tag)
		file, err := bundle.LoadMessageFileFS(localeFS, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load phrase bundle %s: %w", path, err)
		}
		if err := validate(file); err != nil {
			return nil, fmt.Errorf("locale %s: %w", tag, err)
		}
	}
	return &Catalog{bundle: bundle}, nil
}

func validate(file *i18n.MessageFile) error {
	defined := make(map[string]bool, len(file.Messages))
	for _, m := range file.Messages {
		if m.Other != "" {
			defined[m.ID] = true
		}
	}
	var missing []string
	for _, id := range RequiredMessageIDs() {
		if !defined[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingPhrase, strings.Join(missing, ", "))
	}
	return nil
}

// Phrases returns the renderer for one locale.
func (c *Catalog) Phrases(tag Tag) *Phrases {
	return &Phrases{tag: tag, localizer: i18n.NewLocalizer(c.bundle, string(tag))}
}

// Phrases renders the messages of a single locale.
type Phrases struct {
	tag       Tag
	localizer *i18n.Localizer
}

func (p *Phrases) Tag() Tag { return p.tag }

// Text renders a message with optional template data.
func (p *Phrases) Text(id string, data map[string]interface{}) (string, error) {
	msg, err := p.localizer.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		return "", fmt.Errorf("render %s/%s: %w", p.tag, id, err)
	}
	return msg, nil
}

// Days renders a day count with the locale's plural rules, e.g. "1 day" or "5 days".
func (p *Phrases) Days(count int) (string, error) {
	msg, err := p.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    MsgDaysCount,
		PluralCount:  count,
		TemplateData: map[string]interface{}{"Count": count},
	})
	if err != nil {
		return "", fmt.Errorf("render %s/%s: %w", p.tag, MsgDaysCount, err)
	}
	return msg, nil
}

// Date renders t with the locale's weekday and month names.
func (p *Phrases) Date(t time.Time) (string, error) {
	weekday, err := p.Text(weekdayID(t.Weekday()), nil)
	if err != nil {
		return "", err
	}
	month, err := p.Text(monthID(t.Month()), nil)
	if err != nil {
		return "", err
	}
	return p.Text(MsgDateFormat, map[string]interface{}{
		"Weekday": weekday,
		"Day":     t.Day(),
		"Month":   month,
		"Year":    t.Year(),
	})
}

// Clock renders the time of day in 24-hour form.
func (p *Phrases) Clock(t time.Time) string {
	return t.Format("15:04")
}
