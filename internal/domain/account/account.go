// internal/domain/account/account.go
package account

import "time"

// Record is a directory user account as returned by the enumeration collaborator.
// It is read-only input for a run.
type Record struct {
	ID                   string // sAMAccountName
	DisplayName          string
	Email                string // empty when the directory has no mail attribute
	PasswordNeverExpires bool
	PasswordExpired      bool
	CannotChangePassword bool
	RawPasswordExpiry    string  // FILETIME ticks, as exported by the directory
	PolicyRef            string  // Reference to the resultant password policy, empty if none applies
	Policy               *Policy // Resolved policy, nil when none applies
}

// Policy is the password policy in effect for an account.
type Policy struct {
	Name           string
	MaxPasswordAge time.Duration
}

// MaxAgeDays returns the renewal period of the policy in whole days.
func (p *Policy) MaxAgeDays() int {
	if p == nil {
		return 0
	}
	return int(p.MaxPasswordAge / (24 * time.Hour))
}

// Flag names an account attribute the engine may ask the directory to change.
type Flag string

const (
	FlagPasswordNeverExpires Flag = "PasswordNeverExpires"
	FlagCannotChangePassword Flag = "CannotChangePassword"
)
