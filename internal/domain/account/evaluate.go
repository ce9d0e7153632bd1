package account

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// State is the expiration state of an account for the current run.
type State string

const (
	StateNoPolicy      State = "NO_POLICY"
	StateNewUser       State = "NEW_USER_NO_EXPIRATION"
	StateExpiring      State = "EXPIRY_COMPUTED"
	StateExpiryUnknown State = "EXPIRY_UNKNOWN" // Policy applies but the raw expiry could not be decoded
)

const (
	// Ticks between 1601-01-01 (FILETIME epoch) and 1970-01-01, in 100ns units.
	filetimeUnixOffset = 116444736000000000
	ticksPerSecond     = 10000000
	// FILETIME value the directory reports for "never".
	filetimeNever = math.MaxInt64
)

var (
	ErrEmptyExpiry    = errors.New("raw password expiry is empty")
	ErrNeverExpiry    = errors.New("raw password expiry is the 'never' sentinel")
	ErrNegativeExpiry = errors.New("raw password expiry is negative")
)

// Evaluated is the per-run view of a Record against its password policy.
type Evaluated struct {
	Record *Record

	// Expiry fields are only meaningful when HasExpiry is true.
	HasExpiry               bool
	ExpiresOn               time.Time
	TimeBeforeExpire        time.Duration
	DaysBeforeExpireRounded int

	IsNewUserNoExpiration bool

	// DecodeErr is set when a policy applies but the raw expiry was unusable.
	DecodeErr error
}

// DaysBeforeExpire returns the signed fractional number of days left.
func (e *Evaluated) DaysBeforeExpire() float64 {
	return e.TimeBeforeExpire.Hours() / 24
}

// State reports which of the mutually exclusive evaluation outcomes applies.
func (e *Evaluated) State() State {
	switch {
	case e.Record.Policy == nil:
		return StateNoPolicy
	case e.IsNewUserNoExpiration:
		return StateNewUser
	case e.HasExpiry:
		return StateExpiring
	default:
		return StateExpiryUnknown
	}
}

// Evaluate computes the expiration state of rec at now. It never fails:
// an undecodable expiry leaves the expiry fields unset and records DecodeErr.
func Evaluate(rec *Record, now time.Time) *Evaluated {
	ev := &Evaluated{Record: rec}

	if rec.Policy == nil {
		return ev
	}
	if rec.PasswordNeverExpires {
		ev.IsNewUserNoExpiration = true
		return ev
	}

	expiresOn, err := DecodeFiletime(rec.RawPasswordExpiry)
	if err != nil {
		ev.DecodeErr = err
		return ev
	}

	ev.HasExpiry = true
	ev.ExpiresOn = expiresOn.In(now.Location())
	ev.TimeBeforeExpire = expiresOn.Sub(now)
	ev.DaysBeforeExpireRounded = int(math.Round(ev.DaysBeforeExpire()))
	return ev
}

// DecodeFiletime converts a FILETIME tick count (100ns intervals since 1601-01-01 UTC)
// into a time.Time.
func DecodeFiletime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrEmptyExpiry
	}
	ticks, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid raw password expiry %q: %w", raw, err)
	}
	if ticks == filetimeNever {
		return time.Time{}, ErrNeverExpiry
	}
	if ticks < 0 {
		return time.Time{}, ErrNegativeExpiry
	}

	unixTicks := ticks - filetimeUnixOffset
	return time.Unix(unixTicks/ticksPerSecond, (unixTicks%ticksPerSecond)*100).UTC(), nil
}

// EncodeFiletime is the inverse of DecodeFiletime.
func EncodeFiletime(t time.Time) string {
	ticks := t.Unix()*ticksPerSecond + int64(t.Nanosecond()/100) + filetimeUnixOffset
	return strconv.FormatInt(ticks, 10)
}
