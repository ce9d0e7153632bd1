package database

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"password_expiry_notifier/internal/domain/onboarding"
)

// FileLedger is the flat-file onboarding ledger: one `accountId|dd.MM.yyyy HH:mm` line per entry.
type FileLedger struct {
	path  string
	file  *os.File
	index *onboarding.Index
	// unterminated is set when a hand-edited file lacks its final newline.
	unterminated bool
}

// OpenFileLedger loads every existing line of path, then keeps the file open for
// appending. A missing file is created empty.
func OpenFileLedger(path string) (*FileLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger file %s: %w", path, err)
	}

	index := onboarding.NewIndex()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if e, ok := onboarding.ParseLine(scanner.Text()); ok {
			index.Add(e)
		}
	}
	if err := scanner.Err(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read ledger file %s: %w", path, err)
	}

	unterminated, err := lacksTrailingNewline(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read ledger file %s: %w", path, err)
	}

	return &FileLedger{path: path, file: f, index: index, unterminated: unterminated}, nil
}

func lacksTrailingNewline(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return false, err
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

func (l *FileLedger) Contains(accountID string) bool {
	return l.index.Contains(accountID)
}

func (l *FileLedger) ExpiryFor(accountID string) (time.Time, bool) {
	return l.index.ExpiryFor(accountID)
}

func (l *FileLedger) Record(_ context.Context, accountID string, expiry time.Time) error {
	if l.index.Contains(accountID) {
		return onboarding.ErrDuplicateEntry
	}
	line := onboarding.FormatLine(accountID, expiry) + "\n"
	out := line
	if l.unterminated {
		out = "\n" + line
	}
	if _, err := l.file.WriteString(out); err != nil {
		return fmt.Errorf("failed to append to ledger file %s: %w", l.path, err)
	}
	l.unterminated = false
	e, _ := onboarding.ParseLine(line)
	l.index.Add(e)
	return nil
}

func (l *FileLedger) Close() error {
	return l.file.Close()
}
