package notification

import (
	"net/mail"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"password_expiry_notifier/internal/domain/account"
)

// SelectTemplate picks the message variant by priority: new user, expired,
// today (before the next local midnight), tomorrow, then a few days out.
func SelectTemplate(ev *account.Evaluated, now time.Time) Template {
	if ev.IsNewUserNoExpiration {
		return TemplateNewUser
	}
	if ev.Record.PasswordExpired || (ev.HasExpiry && !ev.ExpiresOn.After(now)) {
		return TemplateExpired
	}

	midnight := nextMidnight(now)
	switch {
	case ev.ExpiresOn.Before(midnight):
		return TemplateToday
	case ev.ExpiresOn.Before(midnight.AddDate(0, 0, 1)):
		return TemplateTomorrow
	default:
		return TemplateInFewDays
	}
}

// CalendarDaysUntil counts local midnights between now and t. It agrees with
// SelectTemplate: 0 is today, 1 tomorrow, 2 or more a few days out.
func CalendarDaysUntil(t, now time.Time) int {
	t = t.In(now.Location())
	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	from := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	to := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

// ValidEmail reports whether addr is a usable single mailbox address.
func ValidEmail(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return false
	}
	return parsed.Address == addr
}

// ClassifyAudience returns AudienceInternal when the address domain is one of
// internalDomains or a subdomain of one. Comparison is on the IDNA ASCII form.
func ClassifyAudience(addr string, internalDomains []string) Audience {
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return AudienceExternal
	}
	domain := normalizeDomain(addr[at+1:])
	if domain == "" {
		return AudienceExternal
	}

	for _, internal := range internalDomains {
		internal = normalizeDomain(internal)
		if internal == "" {
			continue
		}
		if domain == internal || strings.HasSuffix(domain, "."+internal) {
			return AudienceInternal
		}
	}
	return AudienceExternal
}

func normalizeDomain(domain string) string {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return strings.ToLower(domain)
	}
	return strings.ToLower(ascii)
}
