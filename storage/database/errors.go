package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// postgres error codes
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
	pqUniqueViolation      = "23505"
)

// IsTransient reports whether err is lock contention worth retrying the transaction for.
func IsTransient(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
			return true
		}
		return false
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff { // primary result code
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

// IsUniqueViolation reports whether err violates a unique constraint whose name (postgres)
// or message (sqlite) contains hint. An empty hint matches any unique constraint.
func IsUniqueViolation(err error, hint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation && strings.Contains(pqErr.Constraint, hint)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return strings.Contains(liteErr.Error(), hint)
		case sqlite3.SQLITE_CONSTRAINT: // extended codes off
			msg := liteErr.Error()
			return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, hint)
		}
	}
	return false
}
