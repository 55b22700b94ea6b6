package executor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/shibukawa/sqlcycle"
)

// FatalError is a connection or driver level failure. It aborts the run.
type FatalError struct {
	Op     string
	Target sqlcycle.Target
	Err    error
}

// Fatal wraps err as a FatalError unless it already is one
func Fatal(op string, target sqlcycle.Target, err error) error {
	if err == nil {
		return nil
	}

	if _, ok := AsFatal(err); ok {
		return err
	}

	return &FatalError{Op: op, Target: target, Err: err}
}

// AsFatal attempts to extract a FatalError from the error chain.
func AsFatal(err error) (*FatalError, bool) {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe, true
	}

	return nil, false
}

func (f *FatalError) Error() string {
	return fmt.Sprintf("fatal error during %s on %s: %v", f.Op, f.Target, f.Err)
}

func (f *FatalError) Unwrap() error {
	return f.Err
}

// Diagnostic renders everything known about the failure, one fact per line.
func (f *FatalError) Diagnostic() string {
	var b strings.Builder

	fmt.Fprintf(&b, "FATAL: %s failed\n", f.Op)
	fmt.Fprintf(&b, "target: %s\n", f.Target)
	fmt.Fprintf(&b, "error: %v\n", f.Err)

	var pgErr *pgconn.PgError
	if errors.As(f.Err, &pgErr) {
		writeField(&b, "severity", pgErr.Severity)
		writeField(&b, "sqlstate", pgErr.Code)
		writeField(&b, "detail", pgErr.Detail)
		writeField(&b, "hint", pgErr.Hint)
		writeField(&b, "where", pgErr.Where)

		if pgErr.Position != 0 {
			fmt.Fprintf(&b, "position: %d\n", pgErr.Position)
		}
	}

	depth := 0
	for err := errors.Unwrap(f.Err); err != nil; err = errors.Unwrap(err) {
		depth++
		fmt.Fprintf(&b, "cause[%d]: %T: %v\n", depth, err, err)
	}

	return strings.TrimRight(b.String(), "\n")
}

func writeField(b *strings.Builder, name, value string) {
	if value != "" {
		fmt.Fprintf(b, "%s: %s\n", name, value)
	}
}

// IsQueryError reports whether err was raised by the database engine as part
// of normal statement processing. Such errors are test material; anything
// else is a connection or driver failure.
func IsQueryError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// FATAL and PANIC end the session
		return pgErr.Severity != "FATAL" && pgErr.Severity != "PANIC"
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		// misuse, I/O and corruption are environment problems
		switch sqliteErr.Code {
		case sqlite3.ErrMisuse, sqlite3.ErrIoErr, sqlite3.ErrCorrupt, sqlite3.ErrCantOpen, sqlite3.ErrNotADB:
			return false
		}

		return true
	}

	return false
}

// ErrorText returns the textual form of a query-level error that expectations
// are compared against. PostgreSQL errors are rendered the way libpq prints
// them: "SEVERITY:  message" followed by DETAIL and HINT lines.
func ErrorText(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return FormatPgError(pgErr)
	}

	return err.Error()
}

// FormatPgError renders a server error in libpq style without trailing newline
func FormatPgError(pgErr *pgconn.PgError) string {
	severity := pgErr.Severity
	if severity == "" {
		severity = "ERROR"
	}

	text := severity + ":  " + pgErr.Message
	if pgErr.Detail != "" {
		text += "\nDETAIL:  " + pgErr.Detail
	}

	if pgErr.Hint != "" {
		text += "\nHINT:  " + pgErr.Hint
	}

	return text
}
