package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dhyansraj/qa-testdesk/internal/apperr"
)

// Postgres SQLSTATE codes with a meaning of their own
const (
	pgInsufficientPrivilege = "42501"
	pgSerializationFailure  = "40001"
	pgDeadlockDetected      = "40P01"
	pgUniqueViolation       = "23505"
	pgForeignKeyViolation   = "23503"
	pgRowSecurityViolation  = "42P17"
)

// classify wraps a driver error with the apperr class it belongs to. The original error
// stays in the chain.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if kind := kindOf(err); kind != nil {
		return fmt.Errorf("%s: %w: %w", op, kind, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func kindOf(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}

	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) {
		switch pgerr.Code {
		case pgInsufficientPrivilege, pgRowSecurityViolation:
			return apperr.ErrPermissionDenied
		case pgSerializationFailure, pgDeadlockDetected, pgUniqueViolation, pgForeignKeyViolation:
			return apperr.ErrPersistenceConflict
		}
		return nil
	}

	var sqerr *sqlite.Error
	if errors.As(err, &sqerr) {
		switch sqerr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CONSTRAINT:
			return apperr.ErrPersistenceConflict
		case sqlite3.SQLITE_PERM, sqlite3.SQLITE_AUTH, sqlite3.SQLITE_READONLY:
			return apperr.ErrPermissionDenied
		}
		return nil
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.ErrNetworkFailure
	}
	return nil
}
