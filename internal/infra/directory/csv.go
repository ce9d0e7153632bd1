package directory

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"password_expiry_notifier/internal/domain/account"
)

// Snapshot column names, matched case-insensitively.
const (
	colAccountName   = "samaccountname"
	colDisplayName   = "displayname"
	colMail          = "mail"
	colNeverExpires  = "passwordneverexpires"
	colExpired       = "passwordexpired"
	colCannotChange  = "cannotchangepassword"
	colExpiryTime    = "passwordexpirytime"
	colPolicyName    = "policyname"
	colMaxPwdAgeDays = "maxpasswordagedays"
	colGroups        = "groups"
	groupSeparator   = "|"
)

var ErrMissingColumn = errors.New("directory snapshot is missing a required column")

type snapshotAccount struct {
	record account.Record
	groups []string
	maxAge time.Duration
}

// CSVDirectory serves accounts from an exported snapshot file, for offline and
// test runs. Flag changes are applied to the in-memory copy only.
//
// A row with an empty account name and a Groups cell declares groups that
// exist without members.
type CSVDirectory struct {
	mu       sync.Mutex
	accounts []*snapshotAccount
	byID     map[string]*snapshotAccount
	groups   map[string]struct{} // lower-cased names of every known group
}

// OpenCSVDirectory reads a snapshot in UTF-8 or UTF-16 (BOM-detected),
// delimited by ';' or ','.
func OpenCSVDirectory(path string) (*CSVDirectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory snapshot: %w", err)
	}
	defer f.Close()
	return ParseCSVDirectory(f)
}

func ParseCSVDirectory(r io.Reader) (*CSVDirectory, error) {
	br := bufio.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))

	first, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("failed to read directory snapshot: %w", err)
	}
	headerLine := string(first)
	if i := strings.IndexByte(headerLine, '\n'); i >= 0 {
		headerLine = headerLine[:i]
	}

	reader := csv.NewReader(br)
	reader.Comma = ','
	if strings.Count(headerLine, ";") > strings.Count(headerLine, ",") {
		reader.Comma = ';'
	}
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty directory snapshot: no header row found")
		}
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols[colAccountName]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, colAccountName)
	}

	d := &CSVDirectory{byID: make(map[string]*snapshotAccount), groups: make(map[string]struct{})}
	rowNum := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}

		get := func(col string) string {
			i, ok := cols[col]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		groups := splitGroups(get(colGroups))
		for _, g := range groups {
			d.groups[strings.ToLower(g)] = struct{}{}
		}

		id := get(colAccountName)
		if id == "" {
			continue
		}
		a := &snapshotAccount{record: account.Record{
			ID:                   id,
			DisplayName:          get(colDisplayName),
			Email:                get(colMail),
			PasswordNeverExpires: parseBool(get(colNeverExpires)),
			PasswordExpired:      parseBool(get(colExpired)),
			CannotChangePassword: parseBool(get(colCannotChange)),
			RawPasswordExpiry:    get(colExpiryTime),
			PolicyRef:            get(colPolicyName),
		}}
		if days := get(colMaxPwdAgeDays); days != "" {
			n, err := strconv.Atoi(days)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid %s %q: %w", rowNum, colMaxPwdAgeDays, days, err)
			}
			a.maxAge = time.Duration(n) * 24 * time.Hour
		}
		a.groups = groups

		if _, dup := d.byID[id]; dup {
			continue
		}
		d.accounts = append(d.accounts, a)
		d.byID[id] = a
	}
	return d, nil
}

func splitGroups(cell string) []string {
	var groups []string
	for _, g := range strings.Split(cell, groupSeparator) {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "vrai", "ja":
		return true
	}
	return false
}

func (d *CSVDirectory) EnumerateEnabledAccounts(_ context.Context) ([]*account.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*account.Record, 0, len(d.accounts))
	for _, a := range d.accounts {
		rec := a.record
		out = append(out, &rec)
	}
	return out, nil
}

func (d *CSVDirectory) ListGroupMembers(_ context.Context, group string) (map[string]struct{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.groups[strings.ToLower(group)]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, group)
	}
	members := make(map[string]struct{})
	for _, a := range d.accounts {
		for _, g := range a.groups {
			if strings.EqualFold(g, group) {
				members[a.record.ID] = struct{}{}
			}
		}
	}
	return members, nil
}

// ResolvePasswordPolicy returns the snapshot's policy columns. An account with
// no policy name has no policy.
func (d *CSVDirectory) ResolvePasswordPolicy(_ context.Context, rec *account.Record) (*account.Policy, error) {
	if rec.PolicyRef == "" {
		return nil, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var age time.Duration
	if a, ok := d.byID[rec.ID]; ok {
		age = a.maxAge
	}
	return &account.Policy{Name: rec.PolicyRef, MaxPasswordAge: age}, nil
}

func (d *CSVDirectory) SetAccountFlag(_ context.Context, accountID string, flag account.Flag, value bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.byID[accountID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	switch flag {
	case account.FlagPasswordNeverExpires:
		a.record.PasswordNeverExpires = value
	case account.FlagCannotChangePassword:
		a.record.CannotChangePassword = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFlag, flag)
	}
	return nil
}
