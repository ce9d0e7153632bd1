package notification

import (
	"fmt"
	"time"
)

// Statistics holds the per-run counters emitted in the end-of-run summary.
// Counters only grow during a run; a new run starts from zero.
type Statistics struct {
	TotalEmailInvalid int
	TotalNewUser      int
	TotalNotExpired   int
	TotalNotInGroup   int
	TotalNotified     int
	TotalNotNotified  int
	TotalChecked      int
}

// Count folds one account's final reason into the counters. Accounts excluded
// by the group filter are counted separately and are not part of TotalChecked.
func (s *Statistics) Count(reason Reason, newUser bool) {
	if reason == ReasonNotInGroup {
		s.TotalNotInGroup++
		return
	}

	s.TotalChecked++
	if newUser {
		s.TotalNewUser++
	}

	switch reason {
	case ReasonNotified, ReasonNewUser:
		s.TotalNotified++
		return
	case ReasonInvalidEmail:
		s.TotalEmailInvalid++
	case ReasonNotExpired, ReasonNotInInterval:
		s.TotalNotExpired++
	}
	s.TotalNotNotified++
}

// Lines renders the summary block, one counter per line.
func (s *Statistics) Lines() []string {
	return []string{
		fmt.Sprintf("Total accounts checked: %d", s.TotalChecked),
		fmt.Sprintf("Total notified: %d", s.TotalNotified),
		fmt.Sprintf("Total not notified: %d", s.TotalNotNotified),
		fmt.Sprintf("Total new users: %d", s.TotalNewUser),
		fmt.Sprintf("Total not expiring yet: %d", s.TotalNotExpired),
		fmt.Sprintf("Total invalid email: %d", s.TotalEmailInvalid),
		fmt.Sprintf("Total not in group: %d", s.TotalNotInGroup),
	}
}

// Outcome is the audit record for one processed account.
type Outcome struct {
	AccountID        string
	DisplayName      string
	Email            string
	Status           Reason
	Template         Template // Empty when no message was composed
	Audience         Audience
	DaysBeforeExpire *int
	ExpiresOn        time.Time // Zero when not computable
	Subject          string
	Recipients       []string
	Error            string
	Timestamp        time.Time
}
