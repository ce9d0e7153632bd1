package database

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"password_expiry_notifier/internal/domain/onboarding"
)

// Ledger buckets; one per run mode.
const (
	BucketLedgerLive       = "onboarding"
	BucketLedgerSimulation = "onboarding_simulation"
)

// BoltLedger keeps onboarding entries in a bbolt bucket, keyed by account ID.
// Values use the same textual timestamp as the flat-file ledger.
type BoltLedger struct {
	db     *bbolt.DB
	bucket []byte
	index  *onboarding.Index
}

func OpenBoltLedger(db *bbolt.DB, bucket string) (*BoltLedger, error) {
	l := &BoltLedger{db: db, bucket: []byte(bucket), index: onboarding.NewIndex()}

	err := db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(l.bucket)
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		return b.ForEach(func(k, v []byte) error {
			e := onboarding.Entry{AccountID: string(k)}
			if t, err := onboarding.ParseExpiry(string(v)); err == nil {
				e.Expiry = t
				e.HasExpiry = true
			}
			l.index.Add(e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (l *BoltLedger) Contains(accountID string) bool {
	return l.index.Contains(accountID)
}

func (l *BoltLedger) ExpiryFor(accountID string) (time.Time, bool) {
	return l.index.ExpiryFor(accountID)
}

func (l *BoltLedger) Record(_ context.Context, accountID string, expiry time.Time) error {
	if l.index.Contains(accountID) {
		return onboarding.ErrDuplicateEntry
	}
	value := onboarding.FormatExpiry(expiry)

	err := l.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(l.bucket)
		if b.Get([]byte(accountID)) != nil {
			return onboarding.ErrDuplicateEntry
		}
		return b.Put([]byte(accountID), []byte(value))
	})
	if err != nil {
		return err
	}

	parsed, _ := onboarding.ParseExpiry(value)
	l.index.Add(onboarding.Entry{AccountID: accountID, Expiry: parsed, HasExpiry: true})
	return nil
}

// Close does not close the bolt database; its owner does.
func (l *BoltLedger) Close() error {
	return nil
}
