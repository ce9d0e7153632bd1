package notification_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"password_expiry_notifier/internal/domain/account"
	"password_expiry_notifier/internal/domain/notification"
)

type fakeLedger map[string]*time.Time

func (f fakeLedger) Contains(id string) bool { _, ok := f[id]; return ok }

func (f fakeLedger) ExpiryFor(id string) (time.Time, bool) {
	if t := f[id]; t != nil {
		return *t, true
	}
	return time.Time{}, false
}

var (
	testNow    = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	testPolicy = &account.Policy{Name: "PSO", MaxPasswordAge: 90 * 24 * time.Hour}
)

func evaluated(days float64) *account.Evaluated {
	rec := &account.Record{
		ID:                "jdoe",
		Email:             "jdoe@corp.example",
		Policy:            testPolicy,
		RawPasswordExpiry: account.EncodeFiletime(testNow.Add(time.Duration(days * float64(24*time.Hour)))),
	}
	return account.Evaluate(rec, testNow)
}

func newUser(id string) *account.Evaluated {
	rec := &account.Record{ID: id, Email: id + "@corp.example", Policy: testPolicy, PasswordNeverExpires: true}
	return account.Evaluate(rec, testNow)
}

func TestDecide_DaysBeforeExpire_IsThreshold(t *testing.T) {
	c := notification.Condition{Mode: notification.ModeDaysBeforeExpire, DaysThreshold: 14}

	d := c.Decide(evaluated(14.3), fakeLedger{}, testNow)
	assert.False(t, d.Notify)
	assert.Equal(t, notification.ReasonNotExpired, d.Reason)

	d = c.Decide(evaluated(13.9), fakeLedger{}, testNow)
	assert.True(t, d.Notify)
	assert.Equal(t, notification.ReasonNotified, d.Reason)

	d = c.Decide(evaluated(-3), fakeLedger{}, testNow)
	assert.True(t, d.Notify, "already expired accounts are under any threshold")
}

func TestDecide_DaysInterval_IsExactMatch(t *testing.T) {
	ev := evaluated(5.2)
	require.Equal(t, 5, ev.DaysBeforeExpireRounded)

	c := notification.Condition{Mode: notification.ModeDaysInterval, IntervalDays: []int{1, 3, 14}}
	d := c.Decide(ev, fakeLedger{}, testNow)
	assert.False(t, d.Notify)
	assert.Equal(t, notification.ReasonNotInInterval, d.Reason)

	c.IntervalDays = []int{1, 3, 5, 14}
	d = c.Decide(ev, fakeLedger{}, testNow)
	assert.True(t, d.Notify)
}

func TestDecide_ProcessAll(t *testing.T) {
	c := notification.Condition{Mode: notification.ModeProcessAll}

	assert.True(t, c.Decide(evaluated(80), fakeLedger{}, testNow).Notify)

	noPolicy := evaluated(2)
	noPolicy.Record.Policy = nil
	noPolicy = account.Evaluate(noPolicy.Record, testNow)
	d := c.Decide(noPolicy, fakeLedger{}, testNow)
	assert.False(t, d.Notify)
	assert.Equal(t, notification.ReasonNoPolicy, d.Reason)

	broken := account.Evaluate(&account.Record{ID: "x", Email: "x@corp.example", Policy: testPolicy, RawPasswordExpiry: "n/a"}, testNow)
	d = c.Decide(broken, fakeLedger{}, testNow)
	assert.False(t, d.Notify)
	assert.Equal(t, notification.ReasonExpiryUnknown, d.Reason)
}

func TestDecide_InvalidEmail_ComesFirst(t *testing.T) {
	c := notification.Condition{Mode: notification.ModeProcessAll, NotifyNewUsers: true, NewUserExpiry: 24 * time.Hour}

	for _, email := range []string{"", "not an address", "Jane <jane@corp.example>"} {
		ev := newUser("jane")
		ev.Record.Email = email
		d := c.Decide(ev, fakeLedger{}, testNow)
		assert.False(t, d.Notify, email)
		assert.Equal(t, notification.ReasonInvalidEmail, d.Reason, email)
	}
}

func TestDecide_NewUser_NotLedgered(t *testing.T) {
	c := notification.Condition{Mode: notification.ModeDaysInterval, IntervalDays: []int{1}}

	d := c.Decide(newUser("neo"), fakeLedger{}, testNow)
	assert.False(t, d.Notify)
	assert.True(t, d.NewUser)
	assert.Equal(t, notification.ReasonNewUserNotNotified, d.Reason)

	c.NotifyNewUsers = true
	c.NewUserExpiry = 14 * 24 * time.Hour
	d = c.Decide(newUser("neo"), fakeLedger{}, testNow)
	assert.True(t, d.Notify, "new users bypass the interval mode")
	assert.Equal(t, notification.ReasonNewUser, d.Reason)
	assert.Equal(t, testNow.Add(14*24*time.Hour), d.ForcedExpiry)
}

func TestDecide_NewUser_AlreadyLedgered(t *testing.T) {
	c := notification.Condition{Mode: notification.ModeProcessAll, NotifyNewUsers: true, NewUserExpiry: time.Hour}
	future := testNow.Add(48 * time.Hour)
	past := testNow.Add(-time.Minute)

	ledger := fakeLedger{"pending": &future, "due": &past, "nodate": nil}

	d := c.Decide(newUser("pending"), ledger, testNow)
	assert.False(t, d.Notify)
	assert.Equal(t, notification.ReasonNewUserAlreadyNotified, d.Reason)
	assert.False(t, d.ClearNeverExpires)

	d = c.Decide(newUser("due"), ledger, testNow)
	assert.False(t, d.Notify)
	assert.True(t, d.ClearNeverExpires)

	d = c.Decide(newUser("nodate"), ledger, testNow)
	assert.False(t, d.Notify)
	assert.False(t, d.ClearNeverExpires, "an unparseable ledger date is never auto-cleared")
}

func TestCondition_Validate(t *testing.T) {
	assert.NoError(t, notification.Condition{Mode: notification.ModeProcessAll}.Validate())
	assert.ErrorIs(t, notification.Condition{Mode: notification.ModeDaysInterval}.Validate(), notification.ErrMissingIntervalSet)
	assert.ErrorIs(t, notification.Condition{Mode: notification.ModeDaysBeforeExpire, DaysThreshold: -1}.Validate(), notification.ErrMissingThreshold)
	assert.ErrorIs(t, notification.Condition{Mode: "weekly"}.Validate(), notification.ErrUnknownMode)
	assert.Error(t, notification.Condition{Mode: notification.ModeProcessAll, NotifyNewUsers: true}.Validate())
}
