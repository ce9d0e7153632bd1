package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"password_expiry_notifier/internal/domain/notification"
	"password_expiry_notifier/internal/domain/onboarding"
)

// Backend names a ledger storage implementation.
type Backend string

const (
	BackendFile     Backend = "file"
	BackendBolt     Backend = "bolt"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

const (
	ledgerFileLive       = "NewUsers.txt"
	ledgerFileSimulation = "NewUsers_Simulation.txt"
	boltFileName         = "ledger.db"
	sqliteFileName       = "ledger.sqlite"
)

var (
	ErrUnknownBackend = errors.New("unknown ledger backend")
	ErrReadOnlyLedger = errors.New("ledger is read-only in report mode")
)

// LedgerOptions selects and locates the ledger for a run.
type LedgerOptions struct {
	Backend Backend
	Dir     string // file, bolt and sqlite backends
	DSN     string // postgres backend
	RunMode notification.RunMode
}

// ledgerHandle closes the backend's own connection together with the ledger.
type ledgerHandle struct {
	onboarding.Ledger
	closeConn func() error
}

func (h *ledgerHandle) Close() error {
	err := h.Ledger.Close()
	if h.closeConn != nil {
		if cerr := h.closeConn(); err == nil {
			err = cerr
		}
	}
	return err
}

// readOnlyLedger serves report-only runs.
type readOnlyLedger struct {
	onboarding.Ledger
}

func (readOnlyLedger) Record(context.Context, string, time.Time) error {
	return ErrReadOnlyLedger
}

// simulated runs get their own ledger; report-only runs read the live one.
func simulated(mode notification.RunMode) bool {
	return mode == notification.RunModeSimulate
}

// LedgerLocation describes where the ledger for opts lives, for logging.
func LedgerLocation(opts LedgerOptions) string {
	switch opts.Backend {
	case BackendFile:
		name := ledgerFileLive
		if simulated(opts.RunMode) {
			name = ledgerFileSimulation
		}
		return filepath.Join(opts.Dir, name)
	case BackendBolt:
		bucket := BucketLedgerLive
		if simulated(opts.RunMode) {
			bucket = BucketLedgerSimulation
		}
		return filepath.Join(opts.Dir, boltFileName) + "#" + bucket
	case BackendSQLite, BackendPostgres:
		table := TableLedgerLive
		if simulated(opts.RunMode) {
			table = TableLedgerSimulation
		}
		return string(opts.Backend) + ":" + table
	}
	return ""
}

// OpenLedger opens the onboarding ledger selected by opts. In report mode the
// live ledger is returned wrapped so that Record always fails.
func OpenLedger(ctx context.Context, opts LedgerOptions) (onboarding.Ledger, error) {
	l, err := openLedger(ctx, opts)
	if err != nil {
		return nil, err
	}
	if opts.RunMode == notification.RunModeReportOnly {
		return readOnlyLedger{Ledger: l}, nil
	}
	return l, nil
}

func openLedger(ctx context.Context, opts LedgerOptions) (onboarding.Ledger, error) {
	switch opts.Backend {
	case BackendFile:
		return OpenFileLedger(LedgerLocation(opts))

	case BackendBolt:
		db, err := NewBoltConnection(filepath.Join(opts.Dir, boltFileName))
		if err != nil {
			return nil, err
		}
		bucket := BucketLedgerLive
		if simulated(opts.RunMode) {
			bucket = BucketLedgerSimulation
		}
		l, err := OpenBoltLedger(db, bucket)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &ledgerHandle{Ledger: l, closeConn: db.Close}, nil

	case BackendSQLite, BackendPostgres:
		var (
			db      *sql.DB
			dialect Dialect
			err     error
		)
		if opts.Backend == BackendSQLite {
			dialect = DialectSQLite
			if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create ledger directory: %w", err)
			}
			db, err = NewSQLiteConnection(filepath.Join(opts.Dir, sqliteFileName))
		} else {
			dialect = DialectPostgres
			db, err = NewPostgresConnection(opts.DSN)
		}
		if err != nil {
			return nil, err
		}
		table := TableLedgerLive
		if simulated(opts.RunMode) {
			table = TableLedgerSimulation
		}
		l, err := OpenSQLLedger(ctx, db, dialect, table)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &ledgerHandle{Ledger: l, closeConn: db.Close}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
}
