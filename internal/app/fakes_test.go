package app_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"gopkg.in/telebot.v3"

	"password_expiry_notifier/internal/domain/account"
	"password_expiry_notifier/internal/domain/mail"
	"password_expiry_notifier/internal/domain/onboarding"
)

var (
	testNow    = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	testPolicy = &account.Policy{Name: "Staff", MaxPasswordAge: 90 * 24 * time.Hour}
)

func expiringIn(days float64) string {
	return account.EncodeFiletime(testNow.Add(time.Duration(days * float64(24*time.Hour))))
}

type flagChange struct {
	accountID string
	flag      account.Flag
	value     bool
}

type fakeDirectory struct {
	records   []*account.Record
	policies  map[string]*account.Policy // by account ID; missing means no policy
	policyErr map[string]error
	groups    map[string]map[string]struct{}
	flags     []flagChange
	resolved  []string
}

func (f *fakeDirectory) EnumerateEnabledAccounts(context.Context) ([]*account.Record, error) {
	return f.records, nil
}

func (f *fakeDirectory) ListGroupMembers(_ context.Context, group string) (map[string]struct{}, error) {
	m, ok := f.groups[group]
	if !ok {
		return nil, errors.New("no such group")
	}
	return m, nil
}

func (f *fakeDirectory) ResolvePasswordPolicy(_ context.Context, rec *account.Record) (*account.Policy, error) {
	f.resolved = append(f.resolved, rec.ID)
	if err := f.policyErr[rec.ID]; err != nil {
		return nil, err
	}
	return f.policies[rec.ID], nil
}

func (f *fakeDirectory) SetAccountFlag(_ context.Context, id string, flag account.Flag, value bool) error {
	f.flags = append(f.flags, flagChange{id, flag, value})
	return nil
}

// memLedger is an onboarding.Ledger that keeps its entries across Close so a
// test can reopen it like a file.
type memLedger struct {
	entries map[string]time.Time
	writes  int
	closed  int
}

func newMemLedger() *memLedger {
	return &memLedger{entries: make(map[string]time.Time)}
}

func (l *memLedger) Contains(id string) bool { _, ok := l.entries[id]; return ok }

func (l *memLedger) ExpiryFor(id string) (time.Time, bool) {
	t, ok := l.entries[id]
	return t, ok
}

func (l *memLedger) Record(_ context.Context, id string, expiry time.Time) error {
	if l.Contains(id) {
		return onboarding.ErrDuplicateEntry
	}
	l.entries[id] = expiry
	l.writes++
	return nil
}

func (l *memLedger) Close() error { l.closed++; return nil }

func (l *memLedger) opener() func(context.Context) (onboarding.Ledger, error) {
	return func(context.Context) (onboarding.Ledger, error) { return l, nil }
}

type fakeSender struct {
	mu   sync.Mutex
	sent []*mail.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg *mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

type fakeTelegram struct {
	chatID int64
	texts  []string
}

func (f *fakeTelegram) SendMessage(chatID int64, text string, _ *telebot.SendOptions) error {
	f.chatID = chatID
	f.texts = append(f.texts, text)
	return nil
}
