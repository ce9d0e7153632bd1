package notification

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"password_expiry_notifier/internal/domain/account"
)

var (
	ErrUnknownMode        = errors.New("unknown condition mode")
	ErrMissingThreshold   = errors.New("days_before_expire mode requires a non-negative threshold")
	ErrMissingIntervalSet = errors.New("days_interval mode requires at least one day")
)

// LedgerReader is the read side of the onboarding ledger the filter consults.
type LedgerReader interface {
	Contains(accountID string) bool
	ExpiryFor(accountID string) (time.Time, bool)
}

// Condition is the configured selection strategy for a run.
type Condition struct {
	Mode           Mode
	DaysThreshold  int           // ModeDaysBeforeExpire
	IntervalDays   []int         // ModeDaysInterval, exact-day matches
	NotifyNewUsers bool          // Whether policy-pending accounts get their onboarding mail
	NewUserExpiry  time.Duration // Offset from now for the forced expiry given to new users
}

// Decision is the outcome of the filter for one account.
type Decision struct {
	Notify bool
	Reason Reason
	// NewUser is true for every account routed through the new-user path.
	NewUser bool
	// ForcedExpiry is set when a new user is selected; it is what the ledger records.
	ForcedExpiry time.Time
	// ClearNeverExpires asks the caller to clear the account's never-expires flag.
	ClearNeverExpires bool
}

// Validate reports configuration errors for the selected mode.
func (c Condition) Validate() error {
	switch c.Mode {
	case ModeDaysBeforeExpire:
		if c.DaysThreshold < 0 {
			return ErrMissingThreshold
		}
	case ModeDaysInterval:
		if len(c.IntervalDays) == 0 {
			return ErrMissingIntervalSet
		}
	case ModeProcessAll:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, c.Mode)
	}
	if c.NotifyNewUsers && c.NewUserExpiry <= 0 {
		return errors.New("new user notifications require a positive forced-expiry offset")
	}
	return nil
}

// Describe renders the condition for logs.
func (c Condition) Describe() string {
	switch c.Mode {
	case ModeDaysBeforeExpire:
		return fmt.Sprintf("%s(<= %d days)", c.Mode, c.DaysThreshold)
	case ModeDaysInterval:
		days := append([]int(nil), c.IntervalDays...)
		sort.Ints(days)
		return fmt.Sprintf("%s(%v)", c.Mode, days)
	default:
		return string(c.Mode)
	}
}

// Decide evaluates one account. Checks run in a fixed order: email, policy,
// new-user path, expiry availability, then the mode itself.
func (c Condition) Decide(ev *account.Evaluated, ledger LedgerReader, now time.Time) Decision {
	if !ValidEmail(ev.Record.Email) {
		return Decision{Reason: ReasonInvalidEmail}
	}

	switch ev.State() {
	case account.StateNoPolicy:
		return Decision{Reason: ReasonNoPolicy}
	case account.StateNewUser:
		return c.decideNewUser(ev, ledger, now)
	case account.StateExpiryUnknown:
		return Decision{Reason: ReasonExpiryUnknown}
	}

	switch c.Mode {
	case ModeDaysBeforeExpire:
		if ev.DaysBeforeExpire() <= float64(c.DaysThreshold) {
			return Decision{Notify: true, Reason: ReasonNotified}
		}
		return Decision{Reason: ReasonNotExpired}
	case ModeDaysInterval:
		for _, d := range c.IntervalDays {
			if ev.DaysBeforeExpireRounded == d {
				return Decision{Notify: true, Reason: ReasonNotified}
			}
		}
		return Decision{Reason: ReasonNotInInterval}
	case ModeProcessAll:
		return Decision{Notify: true, Reason: ReasonNotified}
	}
	return Decision{Reason: ReasonError}
}

func (c Condition) decideNewUser(ev *account.Evaluated, ledger LedgerReader, now time.Time) Decision {
	id := ev.Record.ID

	if ledger.Contains(id) {
		d := Decision{Reason: ReasonNewUserAlreadyNotified, NewUser: true}
		if expiry, ok := ledger.ExpiryFor(id); ok && !now.Before(expiry) {
			d.ClearNeverExpires = true
		}
		return d
	}

	if !c.NotifyNewUsers {
		return Decision{Reason: ReasonNewUserNotNotified, NewUser: true}
	}
	return Decision{
		Notify:       true,
		Reason:       ReasonNewUser,
		NewUser:      true,
		ForcedExpiry: now.Add(c.NewUserExpiry).Truncate(time.Minute),
	}
}
