package ledger

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/d3vgru/easy-peasy-bot/db"
)

// PersistenceError means the datastore was unreachable or rejected an
// operation for a reason other than credentials.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return "ledger " + e.Op + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// AuthError means the datastore rejected the shared secret. Once a Ledger has
// seen one it returns the same AuthError from every later call.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "ledger: datastore rejected credentials: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// IsAuth reports whether err carries an *AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// classify wraps a driver error into the ledger's error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsAuth(err) {
		return err
	}
	if db.IsAuthError(err) {
		return &AuthError{Err: err}
	}
	return &PersistenceError{Op: op, Err: err}
}

// Transient reports whether err looks like a passing datastore condition
// (connection loss, timeout, lock contention) rather than a rejected write.
// It only informs logging; the ledger never retries.
func Transient(err error) bool {
	if err == nil || IsAuth(err) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08 connection exception, 53 insufficient resources, 57P0x operator intervention
		return strings.HasPrefix(pgErr.Code, "08") ||
			strings.HasPrefix(pgErr.Code, "53") ||
			strings.HasPrefix(pgErr.Code, "57P0")
	}
	lower := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"deadline exceeded",
		"no such host",
		"database is locked",
		"sql: database is closed",
	} {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
