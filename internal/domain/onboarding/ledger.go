// internal/domain/onboarding/ledger.go
package onboarding

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ExpiryLayout is the textual form of a forced expiry: dd.MM.yyyy HH:mm, local time, no zone.
const ExpiryLayout = "02.01.2006 15:04"

// Delimiter separates the account ID from the forced expiry in a ledger line.
const Delimiter = "|"

var ErrDuplicateEntry = errors.New("account is already present in the onboarding ledger")

// Ledger records which policy-pending accounts already received their one-time
// onboarding notification, and the forced expiry they were given.
// Entries are loaded once when the ledger is opened; Record appends.
type Ledger interface {
	Contains(accountID string) bool
	// ExpiryFor returns the ledgered forced expiry. ok is false when the account is
	// absent or its stored date could not be parsed.
	ExpiryFor(accountID string) (expiry time.Time, ok bool)
	// Record appends a new entry. It returns ErrDuplicateEntry if the account is already present.
	Record(ctx context.Context, accountID string, expiry time.Time) error
	Close() error
}

// Entry is one ledger row.
type Entry struct {
	AccountID string
	Expiry    time.Time
	HasExpiry bool
}

// Index is the in-memory view shared by every Ledger backend.
type Index struct {
	entries map[string]Entry
}

func NewIndex() *Index {
	return &Index{entries: make(map[string]Entry)}
}

// Add inserts e; the first entry seen for an account wins.
func (ix *Index) Add(e Entry) bool {
	if _, exists := ix.entries[e.AccountID]; exists {
		return false
	}
	ix.entries[e.AccountID] = e
	return true
}

func (ix *Index) Contains(accountID string) bool {
	_, ok := ix.entries[accountID]
	return ok
}

func (ix *Index) ExpiryFor(accountID string) (time.Time, bool) {
	e, ok := ix.entries[accountID]
	if !ok || !e.HasExpiry {
		return time.Time{}, false
	}
	return e.Expiry, true
}

// FormatExpiry renders t in the ledger's textual layout, in local time.
func FormatExpiry(t time.Time) string {
	return t.In(time.Local).Format(ExpiryLayout)
}

// ParseExpiry parses a ledger timestamp as local time.
func ParseExpiry(s string) (time.Time, error) {
	return time.ParseInLocation(ExpiryLayout, strings.TrimSpace(s), time.Local)
}

// FormatLine renders an entry as a ledger line, without the trailing newline.
func FormatLine(accountID string, expiry time.Time) string {
	return accountID + Delimiter + FormatExpiry(expiry)
}

// ParseLine decodes a ledger line. A line without a parseable date still yields
// an entry (HasExpiry false); ok is false only for blank lines.
func ParseLine(line string) (e Entry, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Entry{}, false
	}

	id, rawExpiry, found := strings.Cut(line, Delimiter)
	e.AccountID = strings.TrimSpace(id)
	if e.AccountID == "" {
		return Entry{}, false
	}
	if !found {
		return e, true
	}
	if t, err := ParseExpiry(rawExpiry); err == nil {
		e.Expiry = t
		e.HasExpiry = true
	}
	return e, true
}
