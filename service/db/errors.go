package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PersistenceError wraps every failure returned by the Store.
type PersistenceError struct {
	Op  string
	Err error

	// encoding marks failures that happened before reaching the database.
	encoding bool
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Systemic reports whether the failure affects the database as a whole
// (connection loss, resource exhaustion, shutdown) rather than one record.
// Errors that never reached the server through pgconn are treated as systemic.
func (e *PersistenceError) Systemic() bool {
	if e.encoding {
		return false
	}
	var pgErr *pgconn.PgError
	if !errors.As(e.Err, &pgErr) {
		return true
	}
	switch class(pgErr.Code) {
	case "08", "53", "57":
		return true
	default:
		return false
	}
}

func class(code string) string {
	if len(code) < 2 {
		return ""
	}
	return code[:2]
}

// IsSystemic reports whether err is a systemic PersistenceError.
func IsSystemic(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Systemic()
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
