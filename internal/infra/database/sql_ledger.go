// internal/infra/database/sql_ledger.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"password_expiry_notifier/internal/domain/onboarding"
)

// Dialect holds the driver-specific bits of the ledger schema.
type Dialect struct {
	Name          string
	TimestampType string
}

var (
	DialectPostgres = Dialect{Name: "postgres", TimestampType: "TIMESTAMPTZ"}
	DialectSQLite   = Dialect{Name: "sqlite3", TimestampType: "TIMESTAMP"}
)

// Ledger table names; one per run mode so simulated runs never touch live state.
const (
	TableLedgerLive       = "onboarding_ledger"
	TableLedgerSimulation = "onboarding_ledger_simulation"
)

// SQLLedger stores onboarding entries in a relational table. All rows are
// loaded when the ledger is opened; Record inserts a single row.
type SQLLedger struct {
	db    *sql.DB
	table string
	index *onboarding.Index
}

// OpenSQLLedger creates the table if needed and loads its rows.
// table must be one of the TableLedger* constants.
func OpenSQLLedger(ctx context.Context, db *sql.DB, dialect Dialect, table string) (*SQLLedger, error) {
	if table != TableLedgerLive && table != TableLedgerSimulation {
		return nil, fmt.Errorf("unknown ledger table %q", table)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		account_id    TEXT PRIMARY KEY,
		forced_expiry %s NULL,
		recorded_at   %s NOT NULL
	)`, table, dialect.TimestampType, dialect.TimestampType)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("error creating ledger table %s: %w", table, err)
	}

	l := &SQLLedger{db: db, table: table, index: onboarding.NewIndex()}
	if err := l.load(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *SQLLedger) load(ctx context.Context) error {
	query := fmt.Sprintf(`SELECT account_id, forced_expiry FROM %s ORDER BY recorded_at`, l.table)
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("error querying ledger entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id     string
			expiry sql.NullTime
		)
		if err := rows.Scan(&id, &expiry); err != nil {
			return fmt.Errorf("error scanning ledger row: %w", err)
		}
		l.index.Add(onboarding.Entry{AccountID: id, Expiry: expiry.Time, HasExpiry: expiry.Valid})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating ledger rows: %w", err)
	}
	return nil
}

func (l *SQLLedger) Contains(accountID string) bool {
	return l.index.Contains(accountID)
}

func (l *SQLLedger) ExpiryFor(accountID string) (time.Time, bool) {
	return l.index.ExpiryFor(accountID)
}

func (l *SQLLedger) Record(ctx context.Context, accountID string, expiry time.Time) error {
	if l.index.Contains(accountID) {
		return onboarding.ErrDuplicateEntry
	}
	expiry = expiry.Truncate(time.Minute)

	query := fmt.Sprintf(`INSERT INTO %s (account_id, forced_expiry, recorded_at) VALUES ($1, $2, $3)`, l.table)
	if _, err := l.db.ExecContext(ctx, query, accountID, expiry, time.Now()); err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key") {
			return onboarding.ErrDuplicateEntry
		}
		return fmt.Errorf("error inserting ledger entry for %s: %w", accountID, err)
	}
	l.index.Add(onboarding.Entry{AccountID: accountID, Expiry: expiry, HasExpiry: true})
	return nil
}

// Close does not close the shared *sql.DB; its owner does.
func (l *SQLLedger) Close() error {
	return nil
}
