// Package repository is the MySQL implementation of the store port.  Each
// file owns one table (or a pair of sibling tables) and exposes ...Tx methods
// that run against a caller-supplied transaction.  Errors are returned raw by
// the repos and translated into store sentinels by the sqlTx adapter, so
// sql.ErrNoRows never escapes this package.
package repository

import (
	"encoding/json"
	"time"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// jsonArg marshals v for a JSON column.  A nil v is written as SQL NULL.
func jsonArg(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// utc normalises timestamps before they are written.
func utc(t time.Time) time.Time { return t.UTC() }

// utcPtr normalises a nullable timestamp.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
