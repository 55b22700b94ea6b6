// Package connection supplies database session handles to the engine.
//
// A Handle owns exactly one live session to one target. PostgreSQL targets are
// served by pgx directly so that server notices, the backend process id and the
// transaction status are observable; MySQL and SQLite targets go through
// database/sql on a dedicated *sql.Conn.
package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/shibukawa/sqlcycle"
)

// Sentinel errors for connection handling
var (
	ErrConnect       = errors.New("failed to open connection")
	ErrHandleClosed  = errors.New("connection handle already closed")
	ErrUnknownTarget = errors.New("no opener for target driver")
)

// TxStatus mirrors the transaction status byte of the PostgreSQL protocol
type TxStatus byte

const (
	TxUnknown TxStatus = 0
	TxIdle    TxStatus = 'I'
	TxActive  TxStatus = 'T'
	TxFailed  TxStatus = 'E'
)

func (s TxStatus) String() string {
	switch s {
	case TxIdle:
		return "idle"
	case TxActive:
		return "in transaction"
	case TxFailed:
		return "in failed transaction"
	default:
		return "unknown"
	}
}

// Notice is an informational message emitted by the server during execution
type Notice struct {
	Severity string
	Message  string
	Detail   string
	Hint     string
}

// String renders the notice the way libpq prints it.
func (n Notice) String() string {
	severity := n.Severity
	if severity == "" {
		severity = "NOTICE"
	}

	s := severity + ":  " + n.Message
	if n.Detail != "" {
		s += "\nDETAIL:  " + n.Detail
	}

	if n.Hint != "" {
		s += "\nHINT:  " + n.Hint
	}

	return s
}

// ResultSet is the row set of the last statement of an executed string.
// Values are decoded to Go values; NULL is nil.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Maps converts the result set to ordered row mappings keyed by column name
func (rs *ResultSet) Maps() []map[string]any {
	if rs == nil {
		return nil
	}

	out := make([]map[string]any, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		m := make(map[string]any, len(rs.Columns))
		for i, col := range rs.Columns {
			m[col] = row[i]
		}

		out = append(out, m)
	}

	return out
}

// Handle owns a live session to one target.
type Handle interface {
	// Target returns the endpoint the session belongs to.
	Target() sqlcycle.Target
	// Exec sends text (possibly several statements) to the server. The result
	// set of the final statement is returned, or nil if it produced none.
	Exec(ctx context.Context, text string) (*ResultSet, error)
	// TxStatus reports the transaction state of the session.
	TxStatus(ctx context.Context) TxStatus
	// DrainNotices returns and forgets the notices accumulated so far.
	DrainNotices() []Notice
	// PID returns the server backend process id, or 0 if unknown.
	PID() uint32
	Close(ctx context.Context) error
}

// Opener opens a new handle to a target
type Opener func(ctx context.Context, target sqlcycle.Target) (Handle, error)

// Open dispatches on the target driver
func Open(ctx context.Context, target sqlcycle.Target) (Handle, error) {
	switch target.Driver {
	case sqlcycle.DriverPostgres:
		h, err := OpenPostgres(ctx, target)
		if err != nil {
			return nil, err
		}

		return h, nil
	case sqlcycle.DriverMySQL, sqlcycle.DriverSQLite:
		h, err := OpenSQL(ctx, target)
		if err != nil {
			return nil, err
		}

		return h, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, target.Driver)
	}
}
